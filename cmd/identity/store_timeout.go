package identity

import (
	"context"
	"time"
)

// WithTimeout bounds every call on st by d. A deadline hit inside the store
// surfaces as autherr.ErrTimeout through the store's own classification.
// d <= 0 returns st unchanged.
func WithTimeout(st Store, d time.Duration) Store {
	if d <= 0 {
		return st
	}
	return &timeoutStore{next: st, d: d}
}

type timeoutStore struct {
	next Store
	d    time.Duration
}

func (s *timeoutStore) Create(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.Create(ctx, rec)
}

func (s *timeoutStore) GetByIdentity(ctx context.Context, identity string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.GetByIdentity(ctx, identity)
}

func (s *timeoutStore) UpdateSecret(ctx context.Context, id, secretHash string, now time.Time) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.UpdateSecret(ctx, id, secretHash, now)
}

func (s *timeoutStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.UpdateProfile(ctx, id, upd, now)
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.Ping(ctx)
}
