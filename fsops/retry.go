package fsops

import (
	"log/slog"
	"time"
)

// RetryPolicy is a fixed-delay retry budget for fallible file I/O such as a
// copy racing an antivirus scan or a briefly held handle.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int `mapstructure:"attempts" yaml:"attempts"`

	// Delay is the fixed pause between tries.
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`

	// Sleep pauses between tries. nil means time.Sleep; tests pass a fake.
	Sleep func(time.Duration) `mapstructure:"-" yaml:"-"`

	// OnRetry, when set, is called before each pause with the attempt that
	// just failed.
	OnRetry func(attempt int, err error) `mapstructure:"-" yaml:"-"`
}

// DefaultRetryPolicy is three tries 100ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       100 * time.Millisecond,
	}
}

// Do runs fn until it succeeds or the attempts are used up. It returns the
// number of attempts made and the last error.
func (p RetryPolicy) Do(fn func() error) (int, error) {
	attempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		if logEnabled(slog.LevelDebug) {
			sub("retry").Debug("attempt failed", "attempt", attempt, "of", attempts, "err", lastErr)
		}
		sleep(p.Delay)
	}
	return attempts, lastErr
}
