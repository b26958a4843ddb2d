// Package retry runs an operation with capped exponential backoff.
//
// Only errors accepted by Config.Retryable are retried; anything else is
// returned on the spot. Package-metadata lookups use it like this:
//
//	cfg := retry.BackoffConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    resp, err = client.Do(req)
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"syscall"
	"time"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts (including the first). 0 means no-op.
	InitDelay   time.Duration // Delay before the first retry; doubles afterwards.
	MaxDelay    time.Duration // Upper bound on any single delay.
	Jitter      bool          // Add ±25% random jitter to each delay.

	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool

	// OnRetry is called before each sleep (optional).
	OnRetry func(attempt int, err error, delay time.Duration)
}

// BackoffConfig retries refused and reset connections from 2s doubling up
// to 120s per wait.
func BackoffConfig() Config {
	return Config{
		MaxAttempts: defaults.BackoffAttempts,
		InitDelay:   duration.BackoffInitial,
		MaxDelay:    duration.BackoffMax,
		Retryable:   IsConnectionFailure,
	}
}

// StopError wraps an error to signal that retrying should stop immediately.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further retries.
func Stop(err error) error {
	return &StopError{Err: err}
}

// IsConnectionFailure reports whether err is a refused or reset connection.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// sleeper is an interface for waiting, allowing tests to override time.After.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn up to cfg.MaxAttempts times. It returns nil on the first
// success, the error itself when it is not retryable, or the last error once
// attempts run out. A cancelled context returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return doWithSleeper(ctx, cfg, fn, realSleeper{})
}

func doWithSleeper(ctx context.Context, cfg Config, fn func() error, s sleeper) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts-1 {
			delay := CalcDelay(cfg, attempt)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, lastErr, delay)
			}
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// CalcDelay computes the sleep duration for a given attempt (0-indexed):
// InitDelay * 2^attempt, capped at MaxDelay.
func CalcDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.InitDelay
	for range attempt {
		delay *= 2
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		quarter := int64(delay) / 4
		if quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				delay += j
			} else {
				delay -= j
			}
		}
	}
	return delay
}
