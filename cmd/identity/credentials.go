package identity

import (
	"context"
	"errors"
	"time"

	"credd/cmd/identity/ids"
	"credd/cmd/internal/autherr"
	"credd/cmd/security/password"
)

// Credentials enforces the credential lifecycle on top of a Store.
type Credentials struct {
	store  Store
	hasher password.Hasher
	policy password.Config
	now    func() time.Time
}

// NewCredentials wires a Credentials. policy supplies the strength rules;
// hasher performs the derivations. A nil now means time.Now.
func NewCredentials(store Store, hasher password.Hasher, policy password.Config, now func() time.Time) *Credentials {
	if now == nil {
		now = time.Now
	}
	return &Credentials{store: store, hasher: hasher, policy: policy, now: now}
}

// Register creates a record for identity with plaintext as its secret.
// The secret is hashed exactly once, after every cheap check has passed.
func (c *Credentials) Register(ctx context.Context, identity, plaintext string) (Record, error) {
	const op = "identity.Register"

	norm, err := NormalizeIdentity(identity)
	if err != nil {
		return Record{}, err
	}
	secret := NewSecret(plaintext)
	if err := c.checkSecret(secret); err != nil {
		return Record{}, err
	}

	// Advisory; the store's unique index decides races.
	_, err = c.store.GetByIdentity(ctx, norm)
	switch {
	case err == nil:
		return Record{}, autherr.E(op, autherr.ErrDuplicateIdentity, "")
	case !errors.Is(err, autherr.ErrNotFound):
		return Record{}, err
	}

	now := c.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Record{}, autherr.Wrap(op, autherr.ErrUnavailable, err)
	}

	rec, err := c.apply(ctx, Record{ID: id, Identity: norm, CreatedAt: now, UpdatedAt: now}, secret)
	if err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := c.store.Create(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ChangeSecret replaces the secret of rec after verifying oldPlaintext.
// This is the only update path that can reach the hasher.
func (c *Credentials) ChangeSecret(ctx context.Context, rec Record, oldPlaintext, newPlaintext string) (Record, error) {
	const op = "identity.ChangeSecret"

	secret := NewSecret(newPlaintext)
	if err := c.checkSecret(secret); err != nil {
		return Record{}, err
	}

	ok, err := c.hasher.Verify(ctx, oldPlaintext, rec.SecretHash)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, autherr.E(op, autherr.ErrInvalidCredentials, "")
	}

	next, err := c.apply(ctx, rec, secret)
	if err != nil {
		return Record{}, err
	}
	// A cancelled caller must not get a secret change persisted on its behalf.
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	return c.store.UpdateSecret(ctx, rec.ID, next.SecretHash, c.now().UTC())
}

// UpdateProfile applies non-secret changes. It never calls the hasher and
// the stored secret hash is untouched.
func (c *Credentials) UpdateProfile(ctx context.Context, rec Record, upd ProfileUpdate) (Record, error) {
	upd, err := upd.normalized()
	if err != nil {
		return Record{}, err
	}
	return c.store.UpdateProfile(ctx, rec.ID, upd, c.now().UTC())
}

// Rehash replaces the stored digest of rec with a fresh one derived from
// plaintext under the current parameters. Callers must have verified
// plaintext against rec first; the strength policy is not re-applied so a
// legacy secret keeps working.
func (c *Credentials) Rehash(ctx context.Context, rec Record, plaintext string) (Record, error) {
	next, err := c.apply(ctx, rec, NewSecret(plaintext))
	if err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	return c.store.UpdateSecret(ctx, rec.ID, next.SecretHash, c.now().UTC())
}

// checkSecret validates a new secret without hashing it.
func (c *Credentials) checkSecret(s Secret) error {
	if !s.set {
		return nil
	}
	if password.IsDigest(s.plaintext) {
		return autherr.E("identity.checkSecret", autherr.ErrInvalidInput, "secret must be plaintext, not an encoded digest")
	}
	return c.policy.Validate(s.plaintext)
}

// apply is the single place a plaintext secret becomes a hash. Unchanged
// returns rec as is.
func (c *Credentials) apply(ctx context.Context, rec Record, s Secret) (Record, error) {
	if !s.set {
		return rec, nil
	}
	if password.IsDigest(s.plaintext) {
		return Record{}, autherr.E("identity.apply", autherr.ErrInvalidInput, "secret must be plaintext, not an encoded digest")
	}
	if err := c.policy.CheckLength(s.plaintext); err != nil {
		return Record{}, err
	}

	hash, err := c.hasher.Hash(ctx, s.plaintext)
	if err != nil {
		return Record{}, err
	}
	rec.SecretHash = hash
	return rec, nil
}
