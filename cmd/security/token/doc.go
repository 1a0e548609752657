// Package token holds the server-side signing keys for access tokens.
//
// The KeyRing is the only shared mutable state on the request path. Readers
// load an immutable key set through an atomic pointer; rotation swaps the
// whole set, so every verification after Rotate returns sees the new keys and
// no request ever takes a lock.
//
// Environment:
//   - CREDD_TOKEN_KEYS: comma-separated "kid:hex" pairs, the first pair is the
//     signing key, the remaining pairs are accepted for verification only.
//
// Policy: keys shorter than 32 bytes are rejected.
package token
