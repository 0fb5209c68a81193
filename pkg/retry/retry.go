// Package retry provides bounded backoff retry for transient failures.
//
// The transport client is the only caller: interactive probe requests use a
// small attempt budget with a fixed short delay, so a flaky endpoint gets a
// second chance without making the UI wait through a long backoff curve.
// The caller decides what is retryable via the ShouldRetry predicate; this
// package only handles the loop, the delay and context cancellation.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config provides retry configuration.
type Config struct {
	MaxRetries  int           // Additional attempts after the first (0 = run once)
	Delay       time.Duration // Fixed delay between attempts
	ShouldRetry func(error) bool
}

// DefaultConfig returns the interactive-call defaults: one retry after a
// short pause, retrying everything unless ShouldRetry is set.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 1,
		Delay:      250 * time.Millisecond,
	}
}

// Do executes fn until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. The last error is returned unwrapped so callers keep
// their own classification.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxRetries < 0 {
		return errors.New("retry: MaxRetries cannot be negative")
	}
	if cfg.Delay < 0 {
		return errors.New("retry: Delay cannot be negative")
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(cfg.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// DoWithResult executes fn with retry and returns both result and error.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}
