package fsops

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logger is shared by every engine component. It discards everything until
// InitLogger is called, so the package is silent when embedded in tests.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// LogOptions configures InitLogger.
type LogOptions struct {
	// Dir enables rotating log files when non-empty:
	//   - fsengine_warn.log: WARN + ERROR
	//   - fsengine_info.log: INFO only (1MB, 1 backup)
	//   - fsengine_debug.log: DEBUG only, written only when Debug is set
	Dir string
	// Debug lowers the console threshold to DEBUG.
	Debug bool
}

// InitLogger installs the engine logger. Console output always goes to
// stdout (below WARN) and stderr (WARN and above).
func InitLogger(opts LogOptions) {
	minLevel := slog.LevelInfo
	if opts.Debug {
		minLevel = slog.LevelDebug
	}

	handlers := []slog.Handler{
		&consoleHandler{
			min:    minLevel,
			stdout: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: minLevel}),
			stderr: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
		},
		&errorCaptureHandler{},
	}

	if opts.Dir != "" {
		os.MkdirAll(opts.Dir, 0750) //nolint:errcheck

		handlers = append(handlers,
			slog.NewTextHandler(&lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "fsengine_warn.log"),
				MaxSize:    100,
				MaxBackups: 3,
			}, &slog.HandlerOptions{Level: slog.LevelWarn}),
			levelFile(opts.Dir, "fsengine_info.log", slog.LevelInfo),
		)
		if opts.Debug {
			handlers = append(handlers, levelFile(opts.Dir, "fsengine_debug.log", slog.LevelDebug))
		}
	}

	logger = slog.New(&multiHandler{handlers: handlers})
}

func levelFile(dir, name string, level slog.Level) slog.Handler {
	return &levelRangeHandler{
		min: level,
		max: level,
		inner: slog.NewTextHandler(&lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    1,
			MaxBackups: 1,
		}, &slog.HandlerOptions{Level: level}),
	}
}

// sub returns a child logger tagged with the given component name.
func sub(component string) *slog.Logger {
	return logger.With("comp", component)
}

// logEnabled guards expensive DEBUG logging in hot paths.
func logEnabled(level slog.Level) bool {
	return logger.Enabled(context.Background(), level)
}

// --- consoleHandler: routes below-WARN to stdout, WARN+ to stderr ---

type consoleHandler struct {
	min    slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderr.Handle(ctx, r)
	}
	return h.stdout.Handle(ctx, r)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{min: h.min, stdout: h.stdout.WithAttrs(attrs), stderr: h.stderr.WithAttrs(attrs)}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return &consoleHandler{min: h.min, stdout: h.stdout.WithGroup(name), stderr: h.stderr.WithGroup(name)}
}

// --- errorCaptureHandler: keeps the last few errors for /api/fs/status ---

const recentErrorCap = 4

// LogEntry is a captured error-level log record.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Comp    string    `json:"comp"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Error   string    `json:"error,omitempty"`
}

var errorRing struct {
	mu      sync.Mutex
	entries [recentErrorCap]LogEntry
	count   int
}

// RecentErrors returns the most recent error log entries, newest first.
func RecentErrors() []LogEntry {
	errorRing.mu.Lock()
	defer errorRing.mu.Unlock()
	n := min(errorRing.count, recentErrorCap)
	out := make([]LogEntry, n)
	for i := 0; i < n; i++ {
		out[i] = errorRing.entries[(errorRing.count-1-i)%recentErrorCap]
	}
	return out
}

type errorCaptureHandler struct {
	attrs []slog.Attr
}

func (h *errorCaptureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *errorCaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{Time: r.Time, Message: r.Message}
	capture := func(a slog.Attr) bool {
		switch a.Key {
		case "comp":
			entry.Comp = a.Value.String()
		case "path":
			entry.Path = a.Value.String()
		case "err":
			entry.Error = a.Value.String()
		}
		return true
	}
	for _, a := range h.attrs {
		capture(a)
	}
	r.Attrs(capture)

	errorRing.mu.Lock()
	errorRing.entries[errorRing.count%recentErrorCap] = entry
	errorRing.count++
	errorRing.mu.Unlock()
	return nil
}

// WithAttrs keeps logger-level attributes so "comp" set through sub() is captured.
func (h *errorCaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &errorCaptureHandler{attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *errorCaptureHandler) WithGroup(_ string) slog.Handler { return h }

// --- levelRangeHandler: passes only a specific level range ---

type levelRangeHandler struct {
	min, max slog.Level
	inner    slog.Handler
}

func (h *levelRangeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min && level <= h.max
}

func (h *levelRangeHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelRangeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelRangeHandler) WithGroup(name string) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithGroup(name)}
}

// --- multiHandler: fans out to multiple handlers ---

type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
