// Package ratelimit provides request rate limiting keyed by client identity.
// The Redis-backed limiter enforces a shared window across replicas; the
// local limiter is the single-process fallback.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter counts requests per key in fixed windows stored in Redis, so
// the limit holds across server replicas.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter allows limit requests per key per window.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow increments the key's window counter and reports whether the count is
// still within the limit. The counter key carries the window start so stale
// windows expire on their own.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return count.Val() <= int64(l.limit), nil
}

// LocalLimiter keeps a token bucket per key in process memory.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

var _ Limiter = (*LocalLimiter)(nil)

// NewLocalLimiter allows limit requests per key per window, enforced with a
// token bucket whose burst equals the limit.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
	}
}

// Allow reports whether the key's bucket has a token available.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Keep the map bounded; per-key buckets refill quickly after a reset.
	if len(l.limiters) > 10000 {
		l.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter.Allow(), nil
}
