package fsops

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/marusama/semaphore/v2"
)

// Options configures an Engine. Zero fields take the defaults.
type Options struct {
	// Workers bounds how many slow operations run at once. Default 4.
	Workers int
	// Retry applies to every file copy and rename in copy, move and duplicate.
	Retry RetryPolicy
	// SizeCacheTTL is how long a computed directory size is reused. Default 30s.
	SizeCacheTTL time.Duration
	// Trash receives deletions with useTrash set. nil means DefaultTrash.
	Trash Trash
}

const (
	defaultWorkers      = 4
	defaultSizeCacheTTL = 30 * time.Second
)

// Engine is the entry point for callers. Operations that can be slow on
// large trees run on a bounded pool of goroutines; the rest run inline.
type Engine struct {
	opts    Options
	sem     semaphore.Semaphore
	bus     *EventBus
	watcher *Watcher
	sizes   *ttlcache.Cache[string, int64]
	metrics *Metrics
	trash   Trash

	// sizeGen counts cache invalidations. A size computed across an
	// invalidation is not stored.
	sizeMu  sync.Mutex
	sizeGen uint64
	sizeFn  func(string) (int64, error)

	// closed refuses new offloaded jobs once Close has begun.
	mu     sync.Mutex
	closed bool
	jobs   sync.WaitGroup
}

// Status is a snapshot of the engine for health endpoints.
type Status struct {
	Watching     string     `json:"watching" yaml:"watching"`
	Workers      int        `json:"workers" yaml:"workers"`
	Subscribers  int        `json:"subscribers" yaml:"subscribers"`
	CachedSizes  int        `json:"cached_sizes" yaml:"cached_sizes"`
	RecentErrors []LogEntry `json:"recent_errors" yaml:"recent_errors"`
}

// New creates an engine and starts its size cache janitor. Call Close when
// done.
func New(opts Options) *Engine {
	l := sub("engine")

	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.SizeCacheTTL <= 0 {
		opts.SizeCacheTTL = defaultSizeCacheTTL
	}

	trash := opts.Trash
	if trash == nil {
		var err error
		if trash, err = DefaultTrash(); err != nil {
			l.Warn("no trash available, trashing will fail", "err", err)
			trash = unsupportedTrash{}
		}
	}

	e := &Engine{
		opts:    opts,
		sem:     semaphore.New(opts.Workers),
		bus:     NewEventBus(),
		metrics: NewMetrics(),
		trash:   trash,
		sizeFn:  DirSize,
		sizes: ttlcache.New[string, int64](
			ttlcache.WithTTL[string, int64](opts.SizeCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, int64](),
		),
	}
	e.watcher = NewWatcher(e.bus, e.onChange)
	go e.sizes.Start()

	l.Info("engine started", "workers", opts.Workers, "retryAttempts", opts.Retry.MaxAttempts,
		"retryDelay", opts.Retry.Delay, "sizeCacheTTL", opts.SizeCacheTTL)
	return e
}

// Close stops the watch, waits for running operations and stops the cache.
// Offloaded operations called after Close fail with ErrClosed. Closing twice
// is a no-op.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.watcher.Unwatch()
	e.jobs.Wait()
	e.sizes.Stop()
	sub("engine").Info("engine stopped")
}

// Events returns the bus on which directory changes are published.
func (e *Engine) Events() *EventBus { return e.bus }

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Status reports the engine state and recent errors.
func (e *Engine) Status() Status {
	return Status{
		Watching:     e.watcher.Path(),
		Workers:      e.opts.Workers,
		Subscribers:  e.bus.Subscribers(),
		CachedSizes:  e.sizes.Len(),
		RecentErrors: RecentErrors(),
	}
}

// --- inline operations ---

func (e *Engine) List(dir string, showHidden bool) (DirContents, error) {
	return observe(e, "list", func() (DirContents, error) { return List(dir, showHidden) })
}

func (e *Engine) Details(path string) (FileEntry, error) {
	return observe(e, "details", func() (FileEntry, error) { return Details(path) })
}

func (e *Engine) Properties(path string) (FileProperties, error) {
	return observe(e, "properties", func() (FileProperties, error) { return Properties(path) })
}

func (e *Engine) Rename(path, newName string) (string, error) {
	return observe(e, "rename", func() (string, error) {
		p, err := Rename(path, newName)
		e.invalidateSizes()
		return p, err
	})
}

func (e *Engine) CreateDirectory(parent, name string) (string, error) {
	return observe(e, "mkdir", func() (string, error) { return CreateDirectory(parent, name) })
}

func (e *Engine) CreateFile(parent, name string, content []byte) (string, error) {
	return observe(e, "create", func() (string, error) {
		p, err := CreateFile(parent, name, content)
		e.invalidateSizes()
		return p, err
	})
}

func (e *Engine) ReadText(path string, maxBytes int64) (string, error) {
	return observe(e, "text", func() (string, error) { return ReadText(path, maxBytes) })
}

func (e *Engine) ReadBase64(path string, maxBytes int64) (string, error) {
	return observe(e, "base64", func() (string, error) { return ReadBase64(path, maxBytes) })
}

func (e *Engine) Home() (string, error) { return HomeDir() }

func (e *Engine) QuickAccess() ([]Location, error) { return QuickAccess() }

// Watch makes path the single watched directory.
func (e *Engine) Watch(path string) error {
	_, err := observe(e, "watch", func() (struct{}, error) { return struct{}{}, e.watcher.Watch(path) })
	return err
}

// Unwatch stops watching. It is idempotent.
func (e *Engine) Unwatch() {
	e.watcher.Unwatch()
}

// WatchedPath returns the watched directory or "".
func (e *Engine) WatchedPath() string { return e.watcher.Path() }

// --- offloaded operations ---

func (e *Engine) Search(ctx context.Context, root, query string, showHidden bool) ([]FileEntry, error) {
	return offload(ctx, e, "search", func() ([]FileEntry, error) {
		return Search(root, query, showHidden)
	})
}

func (e *Engine) Copy(ctx context.Context, sources []string, destination string) error {
	_, err := offload(ctx, e, "copy", func() (struct{}, error) {
		err := CopyItems(sources, destination, e.retryFor("copy"))
		e.invalidateSizes()
		return struct{}{}, err
	})
	return err
}

func (e *Engine) Move(ctx context.Context, sources []string, destination string) error {
	_, err := offload(ctx, e, "move", func() (struct{}, error) {
		err := MoveItems(sources, destination, e.retryFor("move"))
		e.invalidateSizes()
		return struct{}{}, err
	})
	return err
}

func (e *Engine) Delete(ctx context.Context, paths []string, useTrash bool) error {
	_, err := offload(ctx, e, "delete", func() (struct{}, error) {
		err := Delete(paths, useTrash, e.trash)
		e.invalidateSizes()
		return struct{}{}, err
	})
	return err
}

func (e *Engine) Duplicate(ctx context.Context, path string) (string, error) {
	return offload(ctx, e, "duplicate", func() (string, error) {
		p, err := Duplicate(path, e.retryFor("duplicate"))
		e.invalidateSizes()
		return p, err
	})
}

func (e *Engine) BatchRename(ctx context.Context, paths []string, pattern, replacement string, useRegex bool) ([]RenamePair, error) {
	return offload(ctx, e, "batch-rename", func() ([]RenamePair, error) {
		pairs, err := BatchRename(paths, pattern, replacement, useRegex)
		if len(pairs) > 0 {
			e.invalidateSizes()
		}
		return pairs, err
	})
}

// DirSize returns the total size of the files below path, reusing a recent
// result when one is cached.
func (e *Engine) DirSize(ctx context.Context, path string) (int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, opErr("dirsize", path, ErrNotFound, err)
	}
	if item := e.sizes.Get(abs); item != nil {
		e.metrics.Operations.WithLabelValues("dirsize", "cached").Inc()
		return item.Value(), nil
	}
	return offload(ctx, e, "dirsize", func() (int64, error) {
		gen := e.sizeGeneration()
		size, err := e.sizeFn(abs)
		if err == nil {
			e.storeSize(abs, size, gen)
		}
		return size, err
	})
}

// offload runs fn on a worker. ctx bounds only the wait for a free worker
// and for the result; once started, fn always runs to completion.
func offload[T any](ctx context.Context, e *Engine, op string, fn func() (T, error)) (T, error) {
	l := sub("engine")
	var zero T

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("%s: waiting for a worker: %w", op, ctx.Err())
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.sem.Release(1)
		return zero, fmt.Errorf("%s: %w", op, ErrClosed)
	}
	e.jobs.Add(1)
	e.mu.Unlock()

	type result struct {
		v   T
		err error
	}
	id := uuid.NewString()
	ch := make(chan result, 1)

	e.metrics.JobsActive.Inc()
	go func() {
		defer e.jobs.Done()
		defer e.sem.Release(1)
		defer e.metrics.JobsActive.Dec()

		start := time.Now()
		l.Debug("job started", "job", id, "op", op)
		v, err := fn()
		e.metrics.Observe(op, start, err)
		if err != nil {
			l.Error("job failed", "job", id, "op", op, "err", err)
		} else {
			l.Debug("job done", "job", id, "op", op, "elapsed", time.Since(start))
		}
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		l.Warn("caller stopped waiting, job keeps running", "job", id, "op", op)
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func observe[T any](e *Engine, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	e.metrics.Observe(op, start, err)
	return v, err
}

// retryFor returns the configured policy with retries counted under op.
func (e *Engine) retryFor(op string) RetryPolicy {
	p := e.opts.Retry
	next := p.OnRetry
	p.OnRetry = func(attempt int, err error) {
		e.metrics.Retries.WithLabelValues(op).Inc()
		if next != nil {
			next(attempt, err)
		}
	}
	return p
}

// invalidateSizes drops cached sizes after a mutation. A failed batch may
// have applied part of its work, so errors invalidate too.
func (e *Engine) invalidateSizes() {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	e.sizeGen++
	e.sizes.DeleteAll()
}

func (e *Engine) sizeGeneration() uint64 {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	return e.sizeGen
}

// storeSize caches size unless the cache was invalidated since gen.
func (e *Engine) storeSize(path string, size int64, gen uint64) {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	if e.sizeGen != gen {
		sub("engine").Debug("dir size outdated, not cached", "path", path)
		return
	}
	e.sizes.Set(path, size, ttlcache.DefaultTTL)
}

func (e *Engine) onChange(ChangeEvent) {
	e.metrics.WatchEvents.Inc()
	e.invalidateSizes()
}
