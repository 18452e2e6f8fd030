package service

import "time"

const defaultMaxRetries = 3

// defaultRetryBackoff is the wait before the next send attempt, indexed by
// the message's current retry count. Counts beyond the table reuse the last
// entry.
var defaultRetryBackoff = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

// RetryPolicy decides whether a failed send gets another attempt and how
// long to wait before it. The policy is pure; the dispatcher owns the
// conditional writes that make re-application after a crash converge.
type RetryPolicy struct {
	maxRetries int
	backoff    []time.Duration
}

func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoff,
	}
}

// ShouldRetry reports whether a message that failed at the given retry count
// is rescheduled rather than terminally failed.
func (p *RetryPolicy) ShouldRetry(retryCount int) bool {
	return retryCount < p.maxRetries
}

// Delay returns the backoff before the next attempt for a message at the
// given retry count.
func (p *RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(p.backoff) {
		retryCount = len(p.backoff) - 1
	}
	return p.backoff[retryCount]
}

func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}
