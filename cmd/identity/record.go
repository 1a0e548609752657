package identity

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"credd/cmd/internal/autherr"
)

// MaxDisplayNameRunes bounds Record.DisplayName.
const MaxDisplayNameRunes = 64

// Record is a persisted credential.
//
// SecretHash is the hasher's encoded digest. It is never serialized to JSON
// and LogValue omits it.
type Record struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	SecretHash  string    `json:"-"`
	DisplayName *string   `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LogValue implements slog.LogValuer.
func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.ID),
		slog.String("identity", r.Identity),
	)
}

// Secret is a pending secret change. The zero value, Unchanged, means the
// stored hash is left alone.
type Secret struct {
	plaintext string
	set       bool
}

// Unchanged leaves the stored secret hash untouched.
var Unchanged = Secret{}

// NewSecret marks plaintext as the new secret.
func NewSecret(plaintext string) Secret {
	return Secret{plaintext: plaintext, set: true}
}

// IsSet reports whether s carries a new secret.
func (s Secret) IsSet() bool { return s.set }

// String keeps the plaintext out of fmt output.
func (s Secret) String() string {
	if !s.set {
		return "unchanged"
	}
	return "[redacted]"
}

// GoString keeps the plaintext out of %#v output.
func (s Secret) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// ProfileUpdate lists mutable non-secret fields. A nil field is left as is;
// a pointer to "" clears the field.
type ProfileUpdate struct {
	DisplayName *string
}

// normalized trims the display name and checks its length.
func (u ProfileUpdate) normalized() (ProfileUpdate, error) {
	if u.DisplayName == nil {
		return u, nil
	}
	v := strings.TrimSpace(*u.DisplayName)
	if !utf8.ValidString(v) || utf8.RuneCountInString(v) > MaxDisplayNameRunes {
		return ProfileUpdate{}, autherr.Ef("identity.UpdateProfile", autherr.ErrInvalidInput,
			"display_name must be valid UTF-8 of at most %d characters", MaxDisplayNameRunes)
	}
	return ProfileUpdate{DisplayName: &v}, nil
}
