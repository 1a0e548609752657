package session

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"credd/cmd/internal/autherr"
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid session config")

var errUnknownKey = errors.New("unknown signing key")

// classify maps golang-jwt parse errors to the taxonomy.
// Order matters: jwt errors are joined, a bad signature is reported before
// any claim is looked at, so the first match wins.
func classify(err error) error {
	const op = "session.Verify"

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return autherr.E(op, autherr.ErrMalformedToken, "token is not a well-formed JWT")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return autherr.E(op, autherr.ErrBadSignature, "")
	case errors.Is(err, jwt.ErrTokenExpired):
		return autherr.E(op, autherr.ErrExpired, "")
	default:
		// Not-yet-valid, wrong issuer, missing required claims.
		return autherr.E(op, autherr.ErrMalformedToken, "token claims rejected")
	}
}
