package identity

import (
	"context"
	"time"
)

// Store is the credential persistence boundary.
//
// Implementations must enforce uniqueness of Record.Identity; the service
// level duplicate check is advisory and races with concurrent registrations.
// Errors are classified with autherr: ErrDuplicateIdentity, ErrNotFound,
// ErrTimeout or ErrUnavailable.
type Store interface {
	Create(ctx context.Context, rec Record) error
	GetByIdentity(ctx context.Context, identity string) (Record, error)

	// UpdateSecret replaces the secret hash and returns the updated record.
	UpdateSecret(ctx context.Context, id, secretHash string, now time.Time) (Record, error)

	// UpdateProfile applies upd and returns the updated record.
	// It has no access to the secret hash.
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Record, error)

	Ping(ctx context.Context) error
}
