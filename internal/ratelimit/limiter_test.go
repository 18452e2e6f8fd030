package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSlidingWindowLimiterAcquireUnderQuota(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	sleepCalls := 0
	limiter := newSlidingWindowLimiter(
		3,
		time.Minute,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			return nil
		},
	)

	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}

	if sleepCalls != 0 {
		t.Fatalf("sleepCalls = %d, want 0", sleepCalls)
	}

	count, err := limiter.InWindow(context.Background())
	if err != nil {
		t.Fatalf("InWindow() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("InWindow() = %d, want 3", count)
	}
}

func TestSlidingWindowLimiterAcquireWaitsForOldest(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	var slept []time.Duration
	limiter := newSlidingWindowLimiter(
		2,
		time.Minute,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		},
	)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() #1 error = %v", err)
	}

	now = now.Add(10 * time.Second)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() #2 error = %v", err)
	}

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() #3 error = %v", err)
	}

	if len(slept) != 1 {
		t.Fatalf("sleep calls = %d, want 1", len(slept))
	}
	if want := 50 * time.Second; slept[0] != want {
		t.Fatalf("slept = %v, want %v", slept[0], want)
	}

	count, err := limiter.InWindow(context.Background())
	if err != nil {
		t.Fatalf("InWindow() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("InWindow() = %d, want 2", count)
	}
}

func TestSlidingWindowLimiterBurstSpansWindow(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	now := start
	limiter := newSlidingWindowLimiter(
		5,
		time.Minute,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	)

	for i := 0; i < 6; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}

	if elapsed := now.Sub(start); elapsed < time.Minute {
		t.Fatalf("6th acquire completed after %v, want >= %v", elapsed, time.Minute)
	}
}

func TestSlidingWindowLimiterAcquireContextCanceled(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := newSlidingWindowLimiter(
		1,
		time.Minute,
		func() time.Time { return now },
		sleepWithContext,
	)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() error = %v, want %v", err, context.Canceled)
	}
}

func TestSlidingWindowLimiterAcquireContextDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := newSlidingWindowLimiter(
		1,
		time.Minute,
		func() time.Time { return now },
		sleepWithContext,
	)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestSlidingWindowLimiterInWindowPrunes(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := newSlidingWindowLimiter(
		3,
		time.Minute,
		func() time.Time { return now },
		nil,
	)

	for i := 0; i < 2; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	now = now.Add(time.Minute + time.Second)

	count, err := limiter.InWindow(context.Background())
	if err != nil {
		t.Fatalf("InWindow() error = %v", err)
	}
	if count != 0 {
		t.Fatalf("InWindow() = %d, want 0", count)
	}
}
