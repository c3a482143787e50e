// Package retry re-runs transient operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // total attempts including the first; 0 = until ctx ends
	InitialWait time.Duration // wait before the second attempt
	MaxWait     time.Duration // cap on a single wait
	Multiplier  float64
	Jitter      float64 // fraction of the wait, 0-1
}

// DefaultConfig returns the page-fetch retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Wait returns the backoff before attempt n+1, without jitter.
func (c Config) Wait(n int) time.Duration {
	w := float64(c.InitialWait) * math.Pow(c.Multiplier, float64(n-1))
	if c.MaxWait > 0 && w > float64(c.MaxWait) {
		w = float64(c.MaxWait)
	}
	return time.Duration(w)
}

// transient marks an error as worth retrying.
type transient struct {
	err error
}

func (e transient) Error() string { return e.err.Error() }
func (e transient) Unwrap() error { return e.err }

// Transient marks err as retryable. It returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transient{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t)
}

// Do runs fn until it succeeds, returns a permanent error, or attempts run
// out. The last error is returned unwrapped from its transient marker.
func Do[T any](ctx context.Context, cfg Config, op string, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return zero, errors.Unwrap(err)
		}

		wait := cfg.Wait(attempt)
		if cfg.Jitter > 0 {
			wait += time.Duration(float64(wait) * cfg.Jitter * (rand.Float64()*2 - 1))
		}
		logging.WithContext(ctx).Warn("retrying after transient error",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
}
