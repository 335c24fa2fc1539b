package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 10 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{40, 10 * time.Second},
	}
	for _, c := range cases {
		if got := BackoffDelay(base, c.attempt, max); got != c.want {
			t.Errorf("BackoffDelay(1s, %d, 10s) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SleepCtx(ctx, 5*time.Second)
	if err == nil {
		t.Fatal("SleepCtx should return the context error when cancelled")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SleepCtx took %v after cancellation, want prompt return", elapsed)
	}
}

func TestTradingDay(t *testing.T) {
	// 23:30 UTC-5 is already the next day in UTC.
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, loc)
	if got := TradingDay(ts); got != "2024-03-02" {
		t.Errorf("TradingDay = %q, want 2024-03-02", got)
	}
	if SameTradingDay(ts, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("SameTradingDay should be false across UTC date boundary")
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block or fail: %v", err)
	}
}
