package fsops

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes at most one directory at a time, non-recursively, and
// republishes every native change as a ChangeEvent carrying that directory.
// Watching a new path replaces the previous watch; watching the active path
// again is a no-op.
type Watcher struct {
	bus     *EventBus
	onEvent func(ChangeEvent)

	mu     sync.Mutex
	active *watchHandle
}

type watchHandle struct {
	path string
	fsw  *fsnotify.Watcher
	quit chan struct{}
	done chan struct{}
}

// NewWatcher creates an idle watcher publishing to bus. onEvent, when not
// nil, sees each event before it is published.
func NewWatcher(bus *EventBus, onEvent func(ChangeEvent)) *Watcher {
	return &Watcher{bus: bus, onEvent: onEvent}
}

// Watch starts watching path. If path is not a directory the current watch,
// if any, is left untouched. If registering the native watch fails, the
// watcher ends up idle.
func (w *Watcher) Watch(path string) error {
	l := sub("watcher")

	abs, err := filepath.Abs(path)
	if err != nil {
		return opErr("watch", path, ErrNotADirectory, err)
	}
	if w.Path() == abs {
		return nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return opErr("watch", abs, ErrNotADirectory, err)
	}
	if !info.IsDir() {
		return opErr("watch", abs, ErrNotADirectory, nil)
	}

	h, err := newWatchHandle(abs)
	if err != nil {
		w.swap(nil)
		l.Warn("watch registration failed", "path", abs, "err", err)
		return opErr("watch", abs, ErrNotAccessible, err)
	}
	go w.forward(h)
	w.swap(h)

	l.Info("watching", "path", abs)
	return nil
}

// Unwatch stops the current watch. It is safe to call when idle.
func (w *Watcher) Unwatch() {
	if old := w.swap(nil); old != "" {
		sub("watcher").Info("unwatched", "path", old)
	}
}

// Path returns the watched directory, or "" when idle.
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return ""
	}
	return w.active.path
}

// swap installs h as the active handle and stops the previous one outside
// the lock. When swap returns, the previous handle delivers no more events.
// It returns the previously watched path.
func (w *Watcher) swap(h *watchHandle) string {
	w.mu.Lock()
	old := w.active
	w.active = h
	w.mu.Unlock()

	if old == nil {
		return ""
	}
	old.stop()
	return old.path
}

func (w *Watcher) forward(h *watchHandle) {
	defer close(h.done)
	for {
		select {
		case ev, ok := <-h.fsw.Events:
			if !ok {
				return
			}
			select {
			case <-h.quit:
				continue
			default:
			}
			change := ChangeEvent{Type: EventDirectoryChanged, Path: h.path, Op: ev.Op.String()}
			if w.onEvent != nil {
				w.onEvent(change)
			}
			if w.bus != nil {
				w.bus.Publish(change)
			}
		case err, ok := <-h.fsw.Errors:
			if !ok {
				return
			}
			sub("watcher").Warn("native watcher error", "path", h.path, "err", err)
		}
	}
}

func newWatchHandle(path string) (*watchHandle, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &watchHandle{
		path: path,
		fsw:  fsw,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

func (h *watchHandle) stop() {
	close(h.quit)
	h.fsw.Close() //nolint:errcheck
	<-h.done
}
