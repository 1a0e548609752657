package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CheckLength enforces the hashing input bounds: non-empty and at most
// Policy.MaxLength runes. Violations are ErrInvalidInput, not ErrWeakSecret,
// because they bound hashing cost rather than express strength.
func (c Config) CheckLength(secret string) error {
	const op = "password.CheckLength"

	if secret == "" {
		return errEmpty(op)
	}
	// Bytes first so a huge input is rejected without a full rune scan.
	if len(secret) > c.Policy.MaxLength*utf8.UTFMax || utf8.RuneCountInString(secret) > c.Policy.MaxLength {
		return errTooLong(op, c.Policy.MaxLength)
	}
	return nil
}

// Validate checks a new secret against the length bounds and the strength policy.
// It does not mutate input.
func (c Config) Validate(secret string) error {
	const op = "password.Validate"

	if err := c.CheckLength(secret); err != nil {
		return err
	}

	// Count characters (runes), not bytes.
	if utf8.RuneCountInString(secret) < c.Policy.MinLength {
		return errWeak(op, "secret is too short")
	}
	if c.Policy.MinClasses > 0 && characterClasses(secret) < c.Policy.MinClasses {
		return errWeak(op, "secret needs more character classes")
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(secret) {
		return errWeak(op, "secret is too common")
	}
	return nil
}

// characterClasses counts how many of lower, upper, digit and symbol appear in s.
func characterClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsSpace(r):
			symbol = true
		}
	}
	n := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}

// looksVeryWeak is intentionally minimal.
// It is not a full zxcvbn-style estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	allSame := true
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	onlyDigits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			onlyDigits = false
			break
		}
	}
	if onlyDigits && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password1", "password123", "password123!", "passw0rd", "p@ssw0rd",
		"123456", "123456789", "1234567890", "qwerty", "qwerty123", "qwertyuiop",
		"letmein", "welcome1", "iloveyou", "admin123", "11111111":
		return true
	}

	return false
}
