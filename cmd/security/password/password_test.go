package password

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"credd/cmd/internal/autherr"
)

// testConfig keeps derivations fast; production cost is covered by the benchmarks.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected digest encoding: %q", h)
	}

	ok, err := cfg.Verify("Sup3rSecret!", h)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	cfg := testConfig()

	h1, err := cfg.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := cfg.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct digests for the same secret")
	}
	for _, h := range []string{h1, h2} {
		ok, err := cfg.Verify("Sup3rSecret!", h)
		if err != nil || !ok {
			t.Fatalf("Verify(%q) ok=%v err=%v", h, ok, err)
		}
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	for _, wrong := range []string{"wrong", "sup3rsecret!", "Sup3rSecret", "Sup3rSecret!!"} {
		ok, err := cfg.Verify(wrong, h)
		if err != nil {
			t.Fatalf("Verify(%q) error: %v", wrong, err)
		}
		if ok {
			t.Fatalf("Verify(%q): expected mismatch", wrong)
		}
	}
}

func TestVerify_OutOfBoundsSecret(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	for _, s := range []string{"", strings.Repeat("a", cfg.Policy.MaxLength+1)} {
		ok, err := cfg.Verify(s, h)
		if err != nil || ok {
			t.Fatalf("expected (false, nil), got ok=%v err=%v", ok, err)
		}
	}
}

func TestHash_InvalidInput(t *testing.T) {
	cfg := testConfig()

	if _, err := cfg.Hash(""); !errors.Is(err, autherr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty secret, got %v", err)
	}
	if _, err := cfg.Hash(strings.Repeat("x", cfg.Policy.MaxLength+1)); !errors.Is(err, autherr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversized secret, got %v", err)
	}
	if _, err := cfg.Hash(strings.Repeat("é", cfg.Policy.MaxLength)); err != nil {
		t.Fatalf("multi-byte secret at max rune length should hash: %v", err)
	}
}

func TestVerify_MalformedDigest(t *testing.T) {
	cfg := testConfig()

	cases := []string{
		"not-a-hash",
		"",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ",
		// Cost far above the configured limits.
		"$argon2id$v=19$m=4194304,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
	}

	for _, d := range cases {
		ok, err := cfg.Verify("whatever-secret", d)
		if !errors.Is(err, autherr.ErrMalformedDigest) {
			t.Fatalf("Verify(%q): expected ErrMalformedDigest, got %v", d, err)
		}
		if ok {
			t.Fatalf("Verify(%q): expected false", d)
		}
	}
}

func TestIsDigest(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !IsDigest(h) {
		t.Fatalf("expected IsDigest for a fresh digest")
	}
	if IsDigest("Sup3rSecret!") || IsDigest("$argon2id$garbage") {
		t.Fatalf("plaintext must not be reported as digest")
	}
}

func TestNeedsRehash(t *testing.T) {
	old := testConfig()
	h, err := old.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if old.NeedsRehash(h) {
		t.Fatalf("digest with current params must not need rehash")
	}

	tuned := old
	tuned.Params.Iterations = 2
	if !tuned.NeedsRehash(h) {
		t.Fatalf("expected rehash after cost change")
	}

	// Older, cheaper digests still verify after retuning.
	ok, err := tuned.Verify("Sup3rSecret!", h)
	if err != nil || !ok {
		t.Fatalf("old digest should verify under tuned config: ok=%v err=%v", ok, err)
	}
}

func TestPool_HashVerify(t *testing.T) {
	p := NewPool(testConfig(), 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Hash(ctx, "Sup3rSecret!")
			if err != nil {
				errs <- err
				return
			}
			ok, err := p.Verify(ctx, "Sup3rSecret!", h)
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- errors.New("expected match")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("pool: %v", err)
	}
}

func TestPool_CancelledCallerGetsNoResult(t *testing.T) {
	p := NewPool(testConfig(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := p.Hash(ctx, "Sup3rSecret!")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h != "" {
		t.Fatalf("cancelled caller must not receive a digest")
	}
}

func TestPool_DeadlineWhileQueued(t *testing.T) {
	cfg := testConfig()
	cfg.Params.MemoryKiB = 64 * 1024
	cfg.Params.Iterations = 4
	p := NewPool(cfg, 1)

	// Occupy the only slot.
	busy := make(chan struct{})
	go func() {
		defer close(busy)
		_, _ = p.Hash(context.Background(), "Sup3rSecret!")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	ok, err := p.Verify(ctx, "Sup3rSecret!", "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got ok=%v err=%v", ok, err)
	}
	<-busy
}
