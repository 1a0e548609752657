// Package throttle limits login attempts per key (client IP, identity).
//
// Limiting is an abuse control layered in front of the authentication
// service; it never changes what a successful or failed attempt returns.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Limiter decides whether one more attempt for key is allowed now.
// When it is not, retryAfter is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendOff    = "off"
)

// Config selects and tunes a Limiter.
type Config struct {
	Backend string        `koanf:"backend"`
	Limit   int           `koanf:"limit"`
	Window  time.Duration `koanf:"window"`

	// MaxKeys caps the keys the memory backend tracks.
	MaxKeys int `koanf:"max_keys"`

	// RedisAddr is host:port, used when Backend is "redis".
	RedisAddr string `koanf:"redis_addr"`
	// RedisPrefix namespaces keys so instances can share a Redis.
	RedisPrefix string `koanf:"redis_prefix"`
}

// DefaultConfig allows 10 attempts per key per minute, in process memory.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMemory,
		Limit:       10,
		Window:      time.Minute,
		MaxKeys:     DefaultMaxKeys,
		RedisPrefix: "credd:throttle:",
	}
}

// Check validates cfg.
func (c Config) Check() error {
	switch strings.ToLower(c.Backend) {
	case BackendOff:
		return nil
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("throttle: redis backend requires redis_addr")
		}
	default:
		return fmt.Errorf("throttle: unknown backend %q", c.Backend)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("throttle: limit must be positive")
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("throttle: max_keys must not be negative")
	}
	if c.Window < time.Second {
		return fmt.Errorf("throttle: window must be at least 1s")
	}
	return nil
}

// Noop allows everything.
type Noop struct{}

// Allow implements Limiter.
func (Noop) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }

// New builds the Limiter cfg names. The returned close func releases any
// backing connection and is never nil.
func New(ctx context.Context, cfg Config) (Limiter, func() error, error) {
	noClose := func() error { return nil }
	if err := cfg.Check(); err != nil {
		return nil, noClose, err
	}

	switch strings.ToLower(cfg.Backend) {
	case BackendOff:
		return Noop{}, noClose, nil
	case BackendRedis:
		rdb, err := NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, noClose, err
		}
		return NewRedis(rdb, cfg.RedisPrefix, cfg.Limit, cfg.Window), rdb.Close, nil
	default:
		m := NewMemory(cfg.Limit, cfg.Window, nil)
		if cfg.MaxKeys > 0 {
			m.maxKeys = cfg.MaxKeys
		}
		return m, noClose, nil
	}
}
