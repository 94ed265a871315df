// Package resilience provides bounded retry with exponential backoff for
// provider calls.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
)

// RetryConfig bounds the number and spacing of attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig allows three attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// NoRetry makes exactly one attempt.
func NoRetry() RetryConfig { return RetryConfig{MaxAttempts: 1} }

// Delay returns the wait before attempt n+1 after n failed attempts (n >= 1).
func (c RetryConfig) Delay(n int) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && time.Duration(d) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or is a
// context cancellation.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, context.Canceled)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out, or ctx is done. The last error is returned unwrapped from Permanent.
func Do(ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var err error
	for n := 1; ; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if IsPermanent(err) || n >= attempts {
			break
		}
		wait := cfg.Delay(n)
		logger.Warnw("retrying provider call", "op", op, "attempt", n, "max_attempts", attempts, "backoff", wait.String(), "error", err.Error())
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}
