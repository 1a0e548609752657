package throttle

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared by every instance pointing at the
// same Redis. The window starts at a key's first attempt.
type Redis struct {
	rdb    goredis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

var _ Limiter = (*Redis)(nil)

// NewRedis builds a Redis limiter over rdb.
func NewRedis(rdb goredis.Cmdable, prefix string, limit int, window time.Duration) *Redis {
	if limit <= 0 {
		limit = DefaultConfig().Limit
	}
	if window <= 0 {
		window = DefaultConfig().Window
	}
	return &Redis{rdb: rdb, prefix: prefix, limit: int64(limit), window: window}
}

// NewRedisClient dials addr. The caller owns the returned client.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("throttle: redis ping failed: %w", err)
	}
	return rdb, nil
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := r.prefix + key

	n, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("throttle: redis incr: %w", err)
	}
	if n == 1 {
		if err := r.rdb.PExpire(ctx, k, r.window).Err(); err != nil {
			return false, 0, fmt.Errorf("throttle: redis pexpire: %w", err)
		}
	}
	if n <= r.limit {
		return true, 0, nil
	}

	ttl, err := r.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("throttle: redis pttl: %w", err)
	}
	if ttl <= 0 {
		// The expiry was lost (crash between INCR and PEXPIRE); restart the window.
		if err := r.rdb.PExpire(ctx, k, r.window).Err(); err != nil {
			return false, 0, fmt.Errorf("throttle: redis pexpire: %w", err)
		}
		ttl = r.window
	}
	return false, ttl, nil
}
