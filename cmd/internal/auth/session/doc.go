// Package session issues and verifies stateless access tokens.
//
// Tokens are HS256 JWTs carrying sub, iat, nbf, exp, iss and a ULID jti; the
// header names the signing key (kid) so verification can pick the key from
// the KeyRing without trial and error. Verification never touches storage.
//
// Revocation lists and refresh tokens are intentionally out of scope here: a
// token dies when it expires or when its key leaves the ring.
package session
