package fsops

import (
	"sync"
)

// EventDirectoryChanged is the type of every event published by Watcher.
const EventDirectoryChanged = "directory-changed"

// ChangeEvent tells subscribers that the watched directory changed.
type ChangeEvent struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
	// Op is the native operation that triggered the event, e.g. "CREATE".
	Op string `json:"op,omitempty" yaml:"op,omitempty"`
}

// EventBus broadcasts ChangeEvents to all subscribers.
type EventBus struct {
	mu      sync.RWMutex
	clients map[chan ChangeEvent]struct{}
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		clients: make(map[chan ChangeEvent]struct{}),
	}
}

// Subscribe registers a new client and returns its event channel.
func (b *EventBus) Subscribe() chan ChangeEvent {
	ch := make(chan ChangeEvent, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel. Unknown channels
// are ignored.
func (b *EventBus) Unsubscribe(ch chan ChangeEvent) {
	b.mu.Lock()
	_, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish sends an event to all subscribers.
// Slow subscribers are skipped (non-blocking send).
func (b *EventBus) Publish(event ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- event:
		default:
			// slow client, drop event
		}
	}
}

// Subscribers returns the number of registered clients.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
