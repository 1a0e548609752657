package identity

import (
	"net/mail"
	"regexp"
	"strings"

	"credd/cmd/internal/autherr"
)

// MaxIdentityBytes bounds an identity after normalization (RFC 5321 path limit).
const MaxIdentityBytes = 254

var usernameRe = regexp.MustCompile(`^[a-z0-9._-]{3,64}$`)

// NormalizeIdentity trims and lower-cases s and checks that the result is
// either an email address or a username.
// Note: case folding is ASCII-oriented; unicode confusables are not mapped.
func NormalizeIdentity(s string) (string, error) {
	const op = "identity.NormalizeIdentity"

	n := strings.ToLower(strings.TrimSpace(s))
	switch {
	case n == "":
		return "", autherr.E(op, autherr.ErrInvalidInput, "identity is required")
	case len(n) > MaxIdentityBytes:
		return "", autherr.Ef(op, autherr.ErrInvalidInput, "identity exceeds %d bytes", MaxIdentityBytes)
	case strings.Contains(n, "@"):
		if !isPlainEmail(n) {
			return "", autherr.E(op, autherr.ErrInvalidInput, "identity is not a valid email address")
		}
	case !usernameRe.MatchString(n):
		return "", autherr.E(op, autherr.ErrInvalidInput, "username must be 3-64 characters of a-z, 0-9, '.', '_' or '-'")
	}
	return n, nil
}

// isPlainEmail accepts a bare addr-spec with a dotted domain, rejecting
// display names and angle brackets that net/mail would otherwise allow.
func isPlainEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	if err != nil || a.Address != s || a.Name != "" {
		return false
	}
	_, domain, ok := strings.Cut(s, "@")
	return ok && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
