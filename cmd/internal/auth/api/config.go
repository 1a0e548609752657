package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls HTTP API behavior.
type Config struct {
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool `koanf:"trust_proxy"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// DefaultConfig returns the API defaults.
func DefaultConfig() Config {
	return Config{
		TrustProxy:   false,
		MaxBodyBytes: 64 << 10,
	}
}

// LoadConfigFromEnv overlays CREDD_API_* variables on base with safe fallbacks.
func LoadConfigFromEnv(base Config) Config {
	cfg := base
	cfg.TrustProxy = envBool("CREDD_API_TRUST_PROXY", cfg.TrustProxy)
	cfg.MaxBodyBytes = envInt64("CREDD_API_MAX_BODY_BYTES", cfg.MaxBodyBytes)

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
