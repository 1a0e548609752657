package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
	SaltLength  uint32 `koanf:"salt_length"`
	KeyLength   uint32 `koanf:"key_length"`
}

// Policy controls secret strength and anti-DoS boundaries.
type Policy struct {
	MinLength int `koanf:"min_length"`
	// MaxLength bounds hashing input; longer secrets are rejected as invalid input.
	MaxLength int `koanf:"max_length"`
	// MinClasses is the number of distinct character classes
	// (lower, upper, digit, symbol) a new secret must contain.
	MinClasses     int  `koanf:"min_classes"`
	RejectVeryWeak bool `koanf:"reject_very_weak"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `koanf:"argon2"`
	Policy Policy         `koanf:"policy"`
}

// DefaultConfig returns the baseline cost and policy.
func DefaultConfig() Config {
	// Clamp to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      10,
			MaxLength:      256,
			MinClasses:     3,
			RejectVeryWeak: true,
		},
	}
}

// Check validates a Config assembled from any source (defaults, file, env, flags).
func (c Config) Check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("argon2 memory_kib out of range [8192..1048576]: %d", p.MemoryKiB)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("argon2 iterations out of range [1..20]: %d", p.Iterations)
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("argon2 parallelism out of range [1..64]: %d", p.Parallelism)
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("argon2 salt_length out of range [8..64]: %d", p.SaltLength)
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("argon2 key_length out of range [16..64]: %d", p.KeyLength)
	}

	pol := c.Policy
	switch {
	case pol.MinLength < 1 || pol.MinLength > 1024:
		return fmt.Errorf("password min_length out of range [1..1024]: %d", pol.MinLength)
	case pol.MaxLength < 1 || pol.MaxLength > 4096:
		return fmt.Errorf("password max_length out of range [1..4096]: %d", pol.MaxLength)
	case pol.MinLength > pol.MaxLength:
		return fmt.Errorf("password policy invalid: min_length(%d) > max_length(%d)", pol.MinLength, pol.MaxLength)
	case pol.MinClasses < 0 || pol.MinClasses > 4:
		return fmt.Errorf("password min_classes out of range [0..4]: %d", pol.MinClasses)
	}
	return nil
}

// FromEnv overlays environment variables on base.
//
// Env surface:
// - CREDD_PASSWORD_MIN_LEN
// - CREDD_PASSWORD_MAX_LEN
// - CREDD_PASSWORD_MIN_CLASSES
// - CREDD_PASSWORD_REJECT_VERY_WEAK (true/false)
// - CREDD_ARGON2_MEMORY_KIB
// - CREDD_ARGON2_ITERATIONS
// - CREDD_ARGON2_PARALLELISM
// - CREDD_ARGON2_SALT_LEN
// - CREDD_ARGON2_KEY_LEN
func FromEnv(base Config) (Config, error) {
	cfg := base

	if v, ok := os.LookupEnv("CREDD_PASSWORD_MIN_LEN"); ok {
		n, err := atoiInRange(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("CREDD_PASSWORD_MAX_LEN"); ok {
		n, err := atoiInRange(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("CREDD_PASSWORD_MIN_CLASSES"); ok {
		n, err := atoiInRange(v, 0, 4)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_PASSWORD_MIN_CLASSES: %w", err)
		}
		cfg.Policy.MinClasses = n
	}

	if v, ok := os.LookupEnv("CREDD_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if v, ok := os.LookupEnv("CREDD_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("CREDD_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("CREDD_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_ARGON2_PARALLELISM: %w", err)
		}
		p, err := u32ToU8(u)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = p
	}

	if v, ok := os.LookupEnv("CREDD_ARGON2_SALT_LEN"); ok {
		u, err := atou32(v, 8, 64)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_ARGON2_SALT_LEN: %w", err)
		}
		cfg.Params.SaltLength = u
	}

	if v, ok := os.LookupEnv("CREDD_ARGON2_KEY_LEN"); ok {
		u, err := atou32(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("CREDD_ARGON2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = u
	}

	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
