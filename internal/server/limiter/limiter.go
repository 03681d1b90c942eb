// Package limiter counts failed attempts per key in fixed windows so a
// caller can refuse further tries once a budget is spent.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures.
var ErrUnavailable = errors.New("attempt limiter unavailable")

// RedisLimiter keeps one INCR counter per key. The TTL is set on the first
// failure of a window, so the window starts at that failure.
type RedisLimiter struct {
	rdb         redis.UniversalClient
	prefix      string
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(rdb redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) key(k string) string {
	return l.prefix + k
}

// Check returns common.ErrTooManyAttempts once maxAttempts failures were
// recorded in the current window. A non-positive maxAttempts never limits.
func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	if l.maxAttempts <= 0 {
		return nil
	}

	count, err := l.rdb.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count >= int64(l.maxAttempts) {
		return common.ErrTooManyAttempts
	}
	return nil
}

// Fail records one failed attempt.
func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := l.key(key)

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Reset forgets all failures for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NopLimiter never limits.
type NopLimiter struct{}

func (NopLimiter) Check(context.Context, string) error { return nil }
func (NopLimiter) Fail(context.Context, string) error  { return nil }
func (NopLimiter) Reset(context.Context, string) error { return nil }
