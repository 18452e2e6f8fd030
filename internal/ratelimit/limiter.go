package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxRequests = 80
	defaultWindow      = time.Minute
)

// Limiter admits message sends under a sliding-window quota.
type Limiter interface {
	// Acquire blocks until one more send fits in the window, then records it.
	Acquire(ctx context.Context) error
	// InWindow reports how many sends are recorded in the current window.
	InWindow(ctx context.Context) (int, error)
	// Limit reports the window's admission capacity.
	Limit() int
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// SlidingWindowLimiter is an in-process sliding-window limiter. It keeps the
// send timestamps of the current window and puts Acquire callers to sleep
// until the oldest timestamp leaves the window.
type SlidingWindowLimiter struct {
	mu          sync.Mutex
	timestamps  []time.Time
	maxRequests int
	window      time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewSlidingWindowLimiter(maxRequests int, window time.Duration) *SlidingWindowLimiter {
	return newSlidingWindowLimiter(maxRequests, window, time.Now, sleepWithContext)
}

func newSlidingWindowLimiter(
	maxRequests int,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) *SlidingWindowLimiter {
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	if window <= 0 {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SlidingWindowLimiter{
		timestamps:  make([]time.Time, 0, maxRequests),
		maxRequests: maxRequests,
		window:      window,
		now:         nowFn,
		sleep:       sleepFn,
	}
}

func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.timestamps) < l.maxRequests {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}

		// Sleep until the oldest recorded send leaves the window, then
		// re-check: another goroutine may take the freed slot first.
		wait := l.window - now.Sub(l.timestamps[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *SlidingWindowLimiter) InWindow(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.timestamps), nil
}

func (l *SlidingWindowLimiter) Limit() int {
	return l.maxRequests
}

// prune drops timestamps that fell out of the window. Callers must hold mu.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)

	idx := 0
	for idx < len(l.timestamps) && !l.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return
	}

	remaining := copy(l.timestamps, l.timestamps[idx:])
	l.timestamps = l.timestamps[:remaining]
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
