package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"credd/cmd/internal/autherr"
)

// MemoryStore is a dev-only fallback when no database is configured.
// Records are lost on restart.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]*Record
	byIdentity map[string]string // identity -> id
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Record),
		byIdentity: make(map[string]string),
	}
}

// Create inserts rec. The uniqueness check runs under the same lock as the
// insert, so concurrent creates of one identity yield one success.
func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	const op = "identity.MemoryStore.Create"

	if err := ctx.Err(); err != nil {
		return autherr.FromStorage(op, err)
	}
	if rec.ID == "" || rec.Identity == "" || strings.TrimSpace(rec.SecretHash) == "" {
		return autherr.E(op, autherr.ErrInvalidInput, "id, identity and secret hash are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byIdentity[rec.Identity]; dup {
		return autherr.E(op, autherr.ErrDuplicateIdentity, "")
	}
	if _, dup := s.byID[rec.ID]; dup {
		return autherr.E(op, autherr.ErrDuplicateIdentity, "id already in use")
	}

	cp := cloneRecord(rec)
	s.byID[rec.ID] = &cp
	s.byIdentity[rec.Identity] = rec.ID
	return nil
}

// GetByIdentity returns the record for identity or ErrNotFound.
func (s *MemoryStore) GetByIdentity(ctx context.Context, identity string) (Record, error) {
	const op = "identity.MemoryStore.GetByIdentity"

	if err := ctx.Err(); err != nil {
		return Record{}, autherr.FromStorage(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdentity[identity]
	if !ok {
		return Record{}, autherr.E(op, autherr.ErrNotFound, "")
	}
	return cloneRecord(*s.byID[id]), nil
}

// UpdateSecret replaces the stored hash.
func (s *MemoryStore) UpdateSecret(ctx context.Context, id, secretHash string, now time.Time) (Record, error) {
	const op = "identity.MemoryStore.UpdateSecret"

	if strings.TrimSpace(secretHash) == "" {
		return Record{}, autherr.E(op, autherr.ErrInvalidInput, "secret hash is required")
	}
	return s.update(ctx, op, id, func(r *Record) {
		r.SecretHash = secretHash
		r.UpdatedAt = now
	})
}

// UpdateProfile applies upd.
func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Record, error) {
	return s.update(ctx, "identity.MemoryStore.UpdateProfile", id, func(r *Record) {
		if upd.DisplayName != nil {
			if *upd.DisplayName == "" {
				r.DisplayName = nil
			} else {
				v := *upd.DisplayName
				r.DisplayName = &v
			}
		}
		r.UpdatedAt = now
	})
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) update(ctx context.Context, op, id string, mutate func(*Record)) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, autherr.FromStorage(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return Record{}, autherr.E(op, autherr.ErrNotFound, "")
	}
	mutate(r)
	return cloneRecord(*r), nil
}

func cloneRecord(r Record) Record {
	if r.DisplayName != nil {
		v := *r.DisplayName
		r.DisplayName = &v
	}
	return r
}
