package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Version = 19 // argon2.Version is 0x13 (19)
	digestPrefix  = "$argon2id$"
)

// Hash derives an Argon2id digest from secret with a fresh random salt.
// Two calls on the same secret return different digests.
//
// Hash enforces only the input bounds (CheckLength); strength policy is the
// caller's decision (see Validate).
func (c Config) Hash(secret string) (string, error) {
	if err := c.CheckLength(secret); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches digest.
// Returns (true, nil) for a match, (false, nil) for a mismatch,
// and (false, ErrMalformedDigest) for malformed or unsupported digests.
//
// A secret outside the hashing bounds cannot match anything and yields
// (false, nil) without deriving a key.
func (c Config) Verify(secret, digest string) (bool, error) {
	params, salt, expected, err := decode(digest)
	if err != nil {
		return false, err
	}

	// Refuse to verify if params exceed our configured cost by a large margin.
	if !withinReasonableBounds(params, c.Params) {
		return false, errMalformed("password.Verify")
	}

	if c.CheckLength(secret) != nil {
		return false, nil
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)), // #nosec G115 -- bounded by withinReasonableBounds.
	)

	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// IsDigest reports whether s already looks like an encoded digest.
// Used to refuse hashing a hash.
func IsDigest(s string) bool {
	if !strings.HasPrefix(s, digestPrefix) {
		return false
	}
	_, _, _, err := decode(s)
	return err == nil
}

// NeedsRehash reports whether digest was produced with parameters different
// from the current configuration. Malformed digests report false.
func (c Config) NeedsRehash(digest string) bool {
	params, _, _, err := decode(digest)
	if err != nil {
		return false
	}
	return params.MemoryKiB != c.Params.MemoryKiB ||
		params.Iterations != c.Params.Iterations ||
		params.Parallelism != c.Params.Parallelism ||
		params.SaltLength != c.Params.SaltLength ||
		params.KeyLength != c.Params.KeyLength
}

func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	// Allow verifying digests generated with older/smaller settings,
	// but reject wildly larger settings.
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if uint32(got.Parallelism) > uint32(limits.Parallelism)*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

// decode parses the encoded digest and returns params, salt and expected key.
func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	const op = "password.decode"

	// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}
	if parts[3] != fmt.Sprintf("m=%d,t=%d,p=%d", mem, it, par) {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2idParams{}, nil, nil, errMalformed(op)
	}

	params := Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),        // #nosec G115 -- checked <= 255 above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by base64 input length.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by base64 input length.
	}
	return params, salt, key, nil
}
