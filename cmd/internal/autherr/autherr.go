// Package autherr defines the credential error taxonomy shared by the hasher,
// the credential store, the token verifier and the HTTP boundary.
//
// Every error produced by this package is a samber/oops error whose code is the
// stable wire code and which unwraps to exactly one sentinel kind, so callers
// can use errors.Is for control flow and the HTTP layer can map kinds to
// status codes without string matching.
package autherr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// Sentinel kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrWeakSecret         = errors.New("weak secret")
	ErrDuplicateIdentity  = errors.New("duplicate identity")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMalformedDigest    = errors.New("malformed digest")
	ErrMalformedToken     = errors.New("malformed token")
	ErrBadSignature       = errors.New("bad signature")
	ErrExpired            = errors.New("token expired")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("timeout")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnavailable        = errors.New("unavailable")
)

// CodeInternal is reported for errors outside the taxonomy.
const CodeInternal = "internal"

const domain = "credd"

var kinds = []struct {
	err  error
	code string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrWeakSecret, "weak_secret"},
	{ErrDuplicateIdentity, "duplicate_identity"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrMalformedDigest, "malformed_digest"},
	{ErrMalformedToken, "malformed_token"},
	{ErrBadSignature, "bad_signature"},
	{ErrExpired, "expired"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrNotFound, "not_found"},
	{ErrTimeout, "timeout"},
	{ErrRateLimited, "rate_limited"},
	{ErrUnavailable, "unavailable"},
}

// E builds a coded error for op that unwraps to kind.
// msg is human-readable context and must never contain secrets.
func E(op string, kind error, msg string) error {
	b := oops.In(domain).Code(codeOfKind(kind)).With("op", op)
	if msg == "" {
		return b.Wrap(kind)
	}
	return b.Wrapf(kind, "%s", msg)
}

// Ef is E with a format string.
func Ef(op string, kind error, format string, args ...any) error {
	return E(op, kind, fmt.Sprintf(format, args...))
}

// Wrap classifies cause as kind. The cause is kept in the error context for
// logging only: Error() and errors.Is expose the kind, never the raw cause.
func Wrap(op string, kind error, cause error) error {
	b := oops.In(domain).Code(codeOfKind(kind)).With("op", op)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrap(kind)
}

// RateLimited builds an ErrRateLimited error carrying a retry hint.
func RateLimited(op string, retryAfter time.Duration) error {
	return oops.In(domain).
		Code(codeOfKind(ErrRateLimited)).
		With("op", op).
		With("retry_after", retryAfter).
		Wrap(ErrRateLimited)
}

// RetryAfter returns the retry hint attached by RateLimited, or 0.
func RetryAfter(err error) time.Duration {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0
	}
	d, _ := oopsErr.Context()["retry_after"].(time.Duration)
	return d
}

// KindOf returns the sentinel kind carried by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// Code returns the stable wire code for err.
func Code(err error) string {
	k := KindOf(err)
	if k == nil {
		return CodeInternal
	}
	return codeOfKind(k)
}

// Is reports whether err carries kind.
func Is(err, kind error) bool { return errors.Is(err, kind) }

// FromStorage maps a persistence failure to the taxonomy.
//
//   - already classified errors pass through unchanged
//   - context.Canceled passes through so callers can tell an aborted request apart
//   - deadlines (context or driver) become ErrTimeout
//   - anything else becomes ErrUnavailable
func FromStorage(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != nil:
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return Wrap(op, ErrTimeout, err)
	default:
		return Wrap(op, ErrUnavailable, err)
	}
}

func codeOfKind(kind error) string {
	for _, k := range kinds {
		if k.err == kind {
			return k.code
		}
	}
	return CodeInternal
}
