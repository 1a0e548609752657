package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Hasher is the context-aware hashing surface consumed by the credential
// store and the authentication service.
type Hasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) (bool, error)
}

// Pool runs Argon2id derivations with a bounded number in flight.
//
// Each derivation allocates Params.MemoryKiB, so an unbounded burst of logins
// can exhaust memory. Pool queues callers on a weighted semaphore instead; no
// mutex is held while a derivation runs.
//
// If the caller's context ends while a derivation is in flight, the
// derivation finishes in the background and its result is discarded.
type Pool struct {
	cfg Config
	sem *semaphore.Weighted
}

var _ Hasher = (*Pool)(nil)

// NewPool builds a Pool. maxInFlight <= 0 defaults to GOMAXPROCS.
func NewPool(cfg Config, maxInFlight int) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = runtime.GOMAXPROCS(0)
	}
	return &Pool{cfg: cfg, sem: semaphore.NewWeighted(int64(maxInFlight))}
}

// Hash derives a digest for secret.
func (p *Pool) Hash(ctx context.Context, secret string) (string, error) {
	return run(ctx, p.sem, func() (string, error) {
		return p.cfg.Hash(secret)
	})
}

// Verify compares secret against digest.
func (p *Pool) Verify(ctx context.Context, secret, digest string) (bool, error) {
	return run(ctx, p.sem, func() (bool, error) {
		return p.cfg.Verify(secret, digest)
	})
}

type outcome[T any] struct {
	v   T
	err error
}

func run[T any](ctx context.Context, sem *semaphore.Weighted, fn func() (T, error)) (T, error) {
	var zero T
	if err := sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer sem.Release(1)
		v, err := fn()
		done <- outcome[T]{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case out := <-done:
		// The caller may have gone away while the result was being delivered.
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return out.v, out.err
	}
}
