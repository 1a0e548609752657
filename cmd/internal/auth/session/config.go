package session

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for access tokens.
type Config struct {
	// Issuer is the value set in the "iss" claim and required on verify.
	Issuer string `koanf:"issuer"`

	// AccessTokenTTL is the lifetime of an access token. Must be at least one
	// second because JWT timestamps have second precision.
	AccessTokenTTL time.Duration `koanf:"access_ttl"`

	// ClockSkew is the leeway applied to exp/nbf/iat checks. Zero means a
	// token is rejected the instant its expiry passes.
	ClockSkew time.Duration `koanf:"clock_skew"`
}

// DefaultConfig returns the baseline token policy.
func DefaultConfig() Config {
	return Config{
		Issuer:         "credd",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      0,
	}
}

// Check validates cfg.
func (c Config) Check() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return ErrConfig
	}
	if c.AccessTokenTTL < time.Second || c.AccessTokenTTL > 24*time.Hour {
		return ErrConfig
	}
	if c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv overlays environment variables on base.
//
// Optional (durations must be valid Go duration strings):
//   - CREDD_AUTH_ISSUER
//   - CREDD_AUTH_ACCESS_TTL
//   - CREDD_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v := strings.TrimSpace(os.Getenv("CREDD_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("CREDD_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("CREDD_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
