package token

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

const (
	// KeysEnv is the env var name for the signing key list.
	// #nosec G101 -- not a credential; it's an environment variable name.
	KeysEnv = "CREDD_TOKEN_KEYS"

	// MinKeyBytes is the smallest accepted HMAC signing key.
	MinKeyBytes = 32
)

var kidRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Key is a named HMAC signing key.
type Key struct {
	ID     string
	Secret []byte
}

// Fingerprint returns a short, non-reversible tag for logs.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k.Secret)
	return hex.EncodeToString(sum[:4])
}

// NewKey validates id and secret.
func NewKey(id string, secret []byte) (Key, error) {
	id = strings.TrimSpace(id)
	if !kidRe.MatchString(id) {
		return Key{}, fmt.Errorf("%w: bad key id %q", ErrKeyInvalid, id)
	}
	if len(secret) == 0 {
		return Key{}, ErrKeyMissing
	}
	if len(secret) < MinKeyBytes {
		return Key{}, ErrKeyTooShort
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return Key{ID: id, Secret: cp}, nil
}

// Generate returns a random 32-byte key named id.
func Generate(id string) (Key, error) {
	secret := make([]byte, MinKeyBytes)
	if _, err := rand.Read(secret); err != nil {
		return Key{}, err
	}
	return NewKey(id, secret)
}

// String encodes k as "kid:hex", the format accepted by ParseKeys.
func (k Key) String() string {
	return k.ID + ":" + hex.EncodeToString(k.Secret)
}

// ParseKeys parses "kid:hex[,kid:hex...]". The first key is the signing key.
func ParseKeys(raw string) ([]Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrKeyMissing
	}

	var keys []Key
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, hexSecret, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: expected kid:hex", ErrKeyInvalid)
		}
		secret, err := hex.DecodeString(strings.TrimSpace(hexSecret))
		if err != nil {
			return nil, fmt.Errorf("%w: key %q is not hex", ErrKeyInvalid, id)
		}
		k, err := NewKey(id, secret)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate key id %q", ErrKeyInvalid, k.ID)
		}
		seen[k.ID] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, ErrKeyMissing
	}
	return keys, nil
}

// keySet is immutable once published.
type keySet struct {
	current  Key
	accepted map[string][]byte
}

// KeyRing publishes the signing key and the verification allow-list.
type KeyRing struct {
	set atomic.Pointer[keySet]
}

// NewKeyRing builds a ring signing with current and additionally accepting
// the keys in previous (the dual-key allow-list).
func NewKeyRing(current Key, previous ...Key) (*KeyRing, error) {
	if _, err := NewKey(current.ID, current.Secret); err != nil {
		return nil, err
	}
	accepted := map[string][]byte{current.ID: current.Secret}
	for _, k := range previous {
		if _, err := NewKey(k.ID, k.Secret); err != nil {
			return nil, err
		}
		if _, dup := accepted[k.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate key id %q", ErrKeyInvalid, k.ID)
		}
		accepted[k.ID] = k.Secret
	}

	r := &KeyRing{}
	r.set.Store(&keySet{current: current, accepted: accepted})
	return r, nil
}

// NewKeyRingFromKeys uses keys[0] as the signing key.
func NewKeyRingFromKeys(keys []Key) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, ErrKeyMissing
	}
	return NewKeyRing(keys[0], keys[1:]...)
}

// Current returns the signing key.
func (r *KeyRing) Current() Key {
	return r.set.Load().current
}

// Lookup returns the secret for kid if it is accepted for verification.
func (r *KeyRing) Lookup(kid string) ([]byte, bool) {
	s, ok := r.set.Load().accepted[kid]
	return s, ok
}

// IDs returns the accepted key ids, signing key first.
func (r *KeyRing) IDs() []string {
	s := r.set.Load()
	ids := []string{s.current.ID}
	for id := range s.accepted {
		if id != s.current.ID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Rotate makes next the signing key. When keepPrevious is true the old
// signing key stays on the allow-list; otherwise tokens it signed stop
// verifying immediately. Other accepted keys are carried over unchanged.
// An accepted key may be promoted if its secret is unchanged.
func (r *KeyRing) Rotate(next Key, keepPrevious bool) error {
	if _, err := NewKey(next.ID, next.Secret); err != nil {
		return err
	}
	for {
		old := r.set.Load()
		if s, dup := old.accepted[next.ID]; dup && (next.ID == old.current.ID || !bytes.Equal(s, next.Secret)) {
			return fmt.Errorf("%w: key id %q already in use", ErrKeyInvalid, next.ID)
		}

		accepted := make(map[string][]byte, len(old.accepted)+1)
		for id, s := range old.accepted {
			accepted[id] = s
		}
		if !keepPrevious {
			delete(accepted, old.current.ID)
		}
		accepted[next.ID] = next.Secret

		if r.set.CompareAndSwap(old, &keySet{current: next, accepted: accepted}) {
			return nil
		}
	}
}

// Revoke removes kid from the allow-list. The signing key cannot be revoked;
// rotate away from it first.
func (r *KeyRing) Revoke(kid string) error {
	for {
		old := r.set.Load()
		if kid == old.current.ID {
			return fmt.Errorf("%w: cannot revoke the signing key %q", ErrKeyInvalid, kid)
		}
		if _, ok := old.accepted[kid]; !ok {
			return nil
		}

		accepted := make(map[string][]byte, len(old.accepted))
		for id, s := range old.accepted {
			if id != kid {
				accepted[id] = s
			}
		}
		if r.set.CompareAndSwap(old, &keySet{current: old.current, accepted: accepted}) {
			return nil
		}
	}
}

// Accept adds k to the allow-list without signing with it. Accepting a key
// that is already listed with the same secret is a no-op.
func (r *KeyRing) Accept(k Key) error {
	if _, err := NewKey(k.ID, k.Secret); err != nil {
		return err
	}
	for {
		old := r.set.Load()
		if s, ok := old.accepted[k.ID]; ok {
			if bytes.Equal(s, k.Secret) {
				return nil
			}
			return fmt.Errorf("%w: key id %q already in use", ErrKeyInvalid, k.ID)
		}

		accepted := make(map[string][]byte, len(old.accepted)+1)
		for id, s := range old.accepted {
			accepted[id] = s
		}
		accepted[k.ID] = k.Secret
		if r.set.CompareAndSwap(old, &keySet{current: old.current, accepted: accepted}) {
			return nil
		}
	}
}

// Reload brings the ring in line with keys, as listed in CREDD_TOKEN_KEYS:
// keys[0] signs, the rest stay accepted and every other key is revoked.
// A key id cannot change its secret while it is on the ring.
func (r *KeyRing) Reload(keys []Key) error {
	if len(keys) == 0 {
		return ErrKeyMissing
	}
	want := make(map[string]Key, len(keys))
	for _, k := range keys {
		if _, err := NewKey(k.ID, k.Secret); err != nil {
			return err
		}
		if _, dup := want[k.ID]; dup {
			return fmt.Errorf("%w: duplicate key id %q", ErrKeyInvalid, k.ID)
		}
		want[k.ID] = k
	}
	for id, k := range want {
		if s, ok := r.Lookup(id); ok && !bytes.Equal(s, k.Secret) {
			return fmt.Errorf("%w: key id %q changed secret", ErrKeyInvalid, id)
		}
	}

	for _, k := range keys[1:] {
		if err := r.Accept(k); err != nil {
			return err
		}
	}
	if cur := r.Current(); cur.ID != keys[0].ID {
		_, keep := want[cur.ID]
		if err := r.Rotate(keys[0], keep); err != nil {
			return err
		}
	}
	for _, id := range r.IDs() {
		if _, ok := want[id]; !ok {
			if err := r.Revoke(id); err != nil {
				return err
			}
		}
	}
	return nil
}
