package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Sujay0610/ReviewReap/internal/ratelimit"
)

const limiterKey = "ratelimit:sends"

// acquireScript prunes entries that fell out of the window, then either
// records the send and returns -1, or returns the score of the oldest entry
// so the caller can sleep until that entry expires.
var acquireScript = goredis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)
local count = redis.call("ZCARD", KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return -1
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return tonumber(oldest[2])
`)

var countScript = goredis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)
return redis.call("ZCARD", KEYS[1])
`)

var _ ratelimit.Limiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a sliding-window limiter shared across instances
// through a Redis sorted set keyed by send time.
type RedisRateLimiter struct {
	client      *goredis.Client
	maxRequests int64
	window      time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, maxRequests int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(
		client,
		int64(maxRequests),
		window,
		time.Now,
		sleepWithContext,
	)
}

func newRedisRateLimiter(
	client *goredis.Client,
	maxRequests int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if maxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	windowMillis := r.window.Milliseconds()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		nowMillis := r.now().UTC().UnixMilli()
		oldest, err := acquireScript.Run(
			ctx,
			r.client,
			[]string{limiterKey},
			nowMillis,
			windowMillis,
			r.maxRequests,
			uuid.NewString(),
		).Int64()
		if err != nil {
			return fmt.Errorf("failed to evaluate rate limit: %w", err)
		}
		if oldest < 0 {
			return nil
		}

		// The window is full. Sleep until the oldest entry leaves it, then
		// re-run the script: another instance may take the freed slot first.
		wait := time.Duration(oldest+windowMillis-nowMillis) * time.Millisecond
		if wait <= 0 {
			continue
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) InWindow(ctx context.Context) (int, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	count, err := countScript.Run(
		ctx,
		r.client,
		[]string{limiterKey},
		r.now().UTC().UnixMilli(),
		r.window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit window: %w", err)
	}

	return int(count), nil
}

func (r *RedisRateLimiter) Limit() int {
	return int(r.maxRequests)
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
