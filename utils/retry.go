package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyResult lets an operation ask for another attempt without having
// failed outright, e.g. a search that answered with zero usable items.
var ErrEmptyResult = errors.New("empty result")

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// LinearBackoff waits base, 2*base, 3*base, ...
func LinearBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// ExponentialBackoff waits base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// RetryPolicy holds the parameters for the retry strategy of one call site.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
	Logger      *Logger
}

// Do executes fn until it succeeds, MaxAttempts is reached, or ctx is done.
// The delay between attempts comes from Backoff; a nil Backoff retries
// immediately.
func (r *RetryPolicy) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if r.Backoff != nil {
			delay = r.Backoff(attempt)
		}
		if r.Logger != nil {
			r.Logger.Debug("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
				operationName, attempt, attempts, lastErr, delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return fmt.Errorf("%s interrupted after %d attempts: %w", operationName, attempt, err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
