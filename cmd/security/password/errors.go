package password

import "credd/cmd/internal/autherr"

func errEmpty(op string) error {
	return autherr.E(op, autherr.ErrInvalidInput, "secret is required")
}

func errTooLong(op string, maxLen int) error {
	return autherr.Ef(op, autherr.ErrInvalidInput, "secret exceeds %d characters", maxLen)
}

func errMalformed(op string) error {
	return autherr.E(op, autherr.ErrMalformedDigest, "digest is not a supported argon2id encoding")
}

func errWeak(op, reason string) error {
	return autherr.E(op, autherr.ErrWeakSecret, reason)
}
