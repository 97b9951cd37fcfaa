package fsops

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Trash == nil {
		opts.Trash = &DirTrash{Files: filepath.Join(t.TempDir(), "trash")}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = noSleep(3)
	}
	e := New(opts)
	t.Cleanup(e.Close)
	return e
}

func TestNew_Defaults(t *testing.T) {
	e := newTestEngine(t, Options{})
	assert.Equal(t, defaultWorkers, e.opts.Workers)
	assert.Equal(t, defaultSizeCacheTTL, e.opts.SizeCacheTTL)

	st := e.Status()
	assert.Equal(t, defaultWorkers, st.Workers)
	assert.Empty(t, st.Watching)
}

func TestEngine_CopyMoveDelete(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	d1 := filepath.Join(dir, "d1")
	d2 := filepath.Join(dir, "d2")
	mkdir(t, d1)
	mkdir(t, d2)

	require.NoError(t, e.Copy(ctx, []string{src}, d1))
	require.NoError(t, e.Move(ctx, []string{filepath.Join(d1, "a.txt")}, d2))
	assert.FileExists(t, filepath.Join(d2, "a.txt"))
	assert.NoFileExists(t, filepath.Join(d1, "a.txt"))

	require.NoError(t, e.Delete(ctx, []string{filepath.Join(d2, "a.txt")}, true))
	assert.NoFileExists(t, filepath.Join(d2, "a.txt"))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Operations.WithLabelValues("copy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Operations.WithLabelValues("move", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Operations.WithLabelValues("delete", "ok")))
}

func TestEngine_ErrorsAreCountedAndReturned(t *testing.T) {
	e := newTestEngine(t, Options{})
	dir := t.TempDir()

	err := e.Copy(context.Background(), []string{filepath.Join(dir, "ghost")}, dir)
	assert.True(t, errors.Is(err, ErrSourceMissing))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Operations.WithLabelValues("copy", "error")))
}

func TestEngine_RetriesAreCounted(t *testing.T) {
	e := newTestEngine(t, Options{})
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "a.txt", "occupied"), "y")

	err := e.Copy(context.Background(), []string{src}, dest)
	assert.True(t, errors.Is(err, ErrCopyFailed))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.Retries.WithLabelValues("copy")))
}

func TestEngine_DirSizeCache(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "12345")

	size, err := e.DirSize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	// Changed behind the engine's back: the cached value is served.
	writeFile(t, filepath.Join(dir, "b"), "123")
	size, err = e.DirSize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, 1, e.Status().CachedSizes)

	// A mutation through the engine drops the cache.
	_, err = e.CreateFile(dir, "c", []byte("1"))
	require.NoError(t, err)
	size, err = e.DirSize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)
}

func TestEngine_DirSizeComputedAcrossInvalidationIsNotCached(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "12345")

	// A mutation lands while the walk is running.
	e.sizeFn = func(path string) (int64, error) {
		size, err := DirSize(path)
		e.invalidateSizes()
		return size, err
	}
	size, err := e.DirSize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, 0, e.Status().CachedSizes)

	e.sizeFn = DirSize
	_, err = e.DirSize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Status().CachedSizes)
}

func TestEngine_WatchEventsInvalidateSizes(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "12345")

	events := e.Events().Subscribe()
	require.NoError(t, e.Watch(dir))
	assert.Equal(t, dir, e.WatchedPath())

	_, err := e.DirSize(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 1, e.Status().CachedSizes)

	writeFile(t, filepath.Join(dir, "b"), "123")
	waitEvent(t, events, dir)

	assert.Eventually(t, func() bool { return e.Status().CachedSizes == 0 }, time.Second, 10*time.Millisecond)
	assert.Positive(t, testutil.ToFloat64(e.metrics.WatchEvents))

	size, err := e.DirSize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)

	e.Unwatch()
	assert.Empty(t, e.WatchedPath())
}

func TestEngine_SizeCacheExpires(t *testing.T) {
	e := newTestEngine(t, Options{SizeCacheTTL: 50 * time.Millisecond})
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "1")

	_, err := e.DirSize(ctx, dir)
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "b"), "22")

	assert.Eventually(t, func() bool {
		size, err := e.DirSize(ctx, dir)
		return err == nil && size == 3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOffload_WaitIsBoundedByContext(t *testing.T) {
	e := newTestEngine(t, Options{Workers: 1})
	release := make(chan struct{})
	started := make(chan struct{})

	go offload(context.Background(), e, "hold", func() (int, error) { //nolint:errcheck
		close(started)
		<-release
		return 1, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := offload(ctx, e, "blocked", func() (int, error) { return 2, nil })
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
}

func TestOffload_StartedJobRunsToCompletion(t *testing.T) {
	e := New(Options{Workers: 2, Trash: &DirTrash{Files: t.TempDir()}})
	release := make(chan struct{})
	started := make(chan struct{})
	var finished atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := offload(ctx, e, "slow", func() (int, error) {
			close(started)
			<-release
			finished.Store(true)
			return 1, nil
		})
		errCh <- err
	}()
	<-started
	cancel()

	err := <-errCh
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, finished.Load())

	close(release)
	e.Close() // waits for running jobs
	assert.True(t, finished.Load())
}

func TestEngine_CloseRefusesNewWork(t *testing.T) {
	e := newTestEngine(t, Options{})
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	dest := filepath.Join(dir, "dest")
	mkdir(t, dest)

	e.Close()
	e.Close()

	err := e.Copy(context.Background(), []string{src}, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoFileExists(t, filepath.Join(dest, "a.txt"))

	_, err = e.DirSize(context.Background(), dir)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestEngine_SearchAndInlineOps(t *testing.T) {
	e := newTestEngine(t, Options{})
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "docs", "Plan.md"), "# plan")

	results, err := e.Search(context.Background(), dir, "plan", false)
	require.NoError(t, err)
	require.Len(t, results, 1)

	contents, err := e.List(filepath.Join(dir, "docs"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Plan.md"}, names(contents.Entries))

	renamed, err := e.Rename(results[0].Path, "Roadmap.md")
	require.NoError(t, err)

	text, err := e.ReadText(renamed, 0)
	require.NoError(t, err)
	assert.Equal(t, "# plan", text)

	dup, err := e.Duplicate(context.Background(), renamed)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "docs", "Roadmap - Copy.md"), dup)

	pairs, err := e.BatchRename(context.Background(), []string{renamed, dup}, "Roadmap", "Plan", false)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}
