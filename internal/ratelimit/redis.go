package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed windows between processes
type RedisLimiter struct {
	rdb *redis.Client
}

// NewRedisLimiter connects to url, e.g. redis://localhost:6379/0
func NewRedisLimiter(url string) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisLimiter{rdb: redis.NewClient(opt)}, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.rdb.Close()
}

// Allow opens the window with SET NX PX and counts the hit in the same
// MULTI/EXEC, so a counter never exists without an expiry.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}

func (l *RedisLimiter) Remaining(ctx context.Context, key string, limit int) (int, error) {
	n, err := l.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return limit, nil
	}
	if err != nil {
		return 0, err
	}
	return max(limit-n, 0), nil
}

func (l *RedisLimiter) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Negative values mean the key is missing or has no expiry.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

var _ Limiter = (*RedisLimiter)(nil)
