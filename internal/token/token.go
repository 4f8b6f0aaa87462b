// Package token issues and verifies the signed bearer credential that
// asserts identity and role claims after a completed OTP login.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned for tokens whose expiry has passed.
	ErrExpired = errors.New("token has expired")

	// ErrBadSignature is returned for tokens not signed with the
	// configured secret.
	ErrBadSignature = errors.New("invalid token signature")

	// ErrMalformed is returned for tokens that cannot be parsed or
	// carry unusable claims.
	ErrMalformed = errors.New("malformed token")
)

// Claims are the identity assertions embedded in a bearer token.
// The account email travels in the registered `sub` claim.
type Claims struct {
	IsAdmin    bool `json:"is_admin"`
	IsVerified bool `json:"is_verified"`
	jwt.RegisteredClaims
}

// Email returns the subject identity.
func (c Claims) Email() string {
	return c.Subject
}

// Issuer signs and verifies HS256 bearer tokens with a fixed TTL.
type Issuer struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// New returns a token Issuer. The secret must be non-empty and the TTL
// positive; both come from configuration.
func New(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	if ttl <= 0 {
		return nil, errors.New("invalid token TTL")
	}

	return &Issuer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token asserting the given identity and flags, expiring
// TTL from now.
func (i *Issuer) Issue(email string, isAdmin, isVerified bool) (string, error) {
	now := i.now()
	claims := Claims{
		IsAdmin:    isAdmin,
		IsVerified: isVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the signature and expiry of a raw token and returns its
// claims. Failures are always one of ErrExpired, ErrBadSignature, or
// ErrMalformed so callers can respond uniformly.
func (i *Issuer) Verify(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrBadSignature
		default:
			return Claims{}, ErrMalformed
		}
	}

	if claims.Subject == "" {
		return Claims{}, ErrMalformed
	}

	return claims, nil
}
