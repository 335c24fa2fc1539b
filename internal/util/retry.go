package util

import (
	"context"
	"time"
)

// BackoffDelay returns the exponential backoff delay for a zero-based
// attempt number: base * 2^attempt, capped at max. Negative attempts yield
// the base delay.
func BackoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if base > max {
			return max
		}
		return base
	}
	// 2^30 seconds already exceeds any sane cap.
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > max || d < base {
		return max
	}
	return d
}

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay, capped at maxDelay. It returns nil on the first successful call,
// or the last error if all attempts fail. The sleep between attempts is
// cancellable through the context.
func Retry(ctx context.Context, maxAttempts int, baseDelay, maxDelay time.Duration, fn func() error) error {
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(BackoffDelay(baseDelay, attempt, maxDelay)):
			}
		}
	}

	return err
}

// SleepCtx sleeps for d or until the context is cancelled, whichever comes
// first. It returns the context error on cancellation and nil otherwise.
func SleepCtx(ctx context.Context, d time.Duration) error {
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
