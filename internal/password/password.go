// Package password wraps one-way password hashing and the password
// strength policy applied at registration and password changes.
package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost factor. Raising it slows every login; change deliberately.
const cost = 10

// ErrWeak is returned by ValidateStrength for passwords that don't meet
// the policy. The wrapped message lists what's missing.
var ErrWeak = errors.New("password too weak")

// Hash derives a salted bcrypt hash from a plaintext password.
func Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches the stored hash. It fails closed:
// malformed hashes or empty input yield false, never an error.
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// ValidateStrength checks the password policy: minimum 8 characters with
// at least one uppercase letter, one lowercase letter, one digit, and
// one special character.
func ValidateStrength(plain string) error {
	var upper, lower, digit, special bool
	for _, ch := range plain {
		switch {
		case unicode.IsUpper(ch):
			upper = true
		case unicode.IsLower(ch):
			lower = true
		case unicode.IsDigit(ch):
			digit = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			special = true
		}
	}

	var missing []string
	if len(plain) < 8 {
		missing = append(missing, "at least 8 characters")
	}
	if !upper {
		missing = append(missing, "an uppercase letter")
	}
	if !lower {
		missing = append(missing, "a lowercase letter")
	}
	if !digit {
		missing = append(missing, "a number")
	}
	if !special {
		missing = append(missing, "a special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain %s", ErrWeak, strings.Join(missing, ", "))
	}
	return nil
}
