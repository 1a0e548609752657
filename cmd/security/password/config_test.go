package password

import (
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"CREDD_PASSWORD_MIN_LEN",
		"CREDD_PASSWORD_MAX_LEN",
		"CREDD_PASSWORD_MIN_CLASSES",
		"CREDD_PASSWORD_REJECT_VERY_WEAK",
		"CREDD_ARGON2_MEMORY_KIB",
		"CREDD_ARGON2_ITERATIONS",
		"CREDD_ARGON2_PARALLELISM",
		"CREDD_ARGON2_SALT_LEN",
		"CREDD_ARGON2_KEY_LEN",
	} {
		_ = os.Unsetenv(k)
	}

	def := DefaultConfig()
	cfg, err := FromEnv(def)
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg != def {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("CREDD_PASSWORD_MIN_LEN", "10")
	t.Setenv("CREDD_PASSWORD_MAX_LEN", "200")
	t.Setenv("CREDD_PASSWORD_MIN_CLASSES", "2")
	t.Setenv("CREDD_PASSWORD_REJECT_VERY_WEAK", "false")
	t.Setenv("CREDD_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("CREDD_ARGON2_ITERATIONS", "4")
	t.Setenv("CREDD_ARGON2_PARALLELISM", "2")
	t.Setenv("CREDD_ARGON2_SALT_LEN", "24")
	t.Setenv("CREDD_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv(DefaultConfig())
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || cfg.Policy.MinClasses != 2 || cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("CREDD_PASSWORD_MIN_LEN", "20")
	t.Setenv("CREDD_PASSWORD_MAX_LEN", "10")

	if _, err := FromEnv(DefaultConfig()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnv_OutOfRange(t *testing.T) {
	t.Setenv("CREDD_ARGON2_MEMORY_KIB", "1024")

	if _, err := FromEnv(DefaultConfig()); err == nil {
		t.Fatalf("expected error for memory below floor")
	}
}

func TestCheck_RejectsZeroParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Params.Iterations = 0
	if err := cfg.Check(); err == nil {
		t.Fatalf("expected error")
	}
}
