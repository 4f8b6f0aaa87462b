package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, secret string) *Issuer {
	t.Helper()
	i, err := New([]byte(secret), 24*time.Hour)
	require.NoError(t, err)
	return i
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, time.Hour)
	assert.Error(t, err, "empty secret should be rejected")

	_, err = New([]byte("s3cret"), 0)
	assert.Error(t, err, "zero TTL should be rejected")
}

func TestIssueVerify(t *testing.T) {
	i := newTestIssuer(t, "s3cret")

	raw, err := i.Issue("owner@example.com", true, true)
	require.NoError(t, err)

	claims, err := i.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", claims.Email())
	assert.True(t, claims.IsAdmin)
	assert.True(t, claims.IsVerified)
}

func TestVerifyWrongSecret(t *testing.T) {
	i := newTestIssuer(t, "s3cret")
	other := newTestIssuer(t, "different")

	raw, err := i.Issue("owner@example.com", true, true)
	require.NoError(t, err)

	_, err = other.Verify(raw)
	assert.Equal(t, ErrBadSignature, err)
}

func TestVerifyExpired(t *testing.T) {
	i := newTestIssuer(t, "s3cret")

	raw, err := i.Issue("owner@example.com", false, true)
	require.NoError(t, err)

	// Move the verifier's clock past the 24h TTL.
	i.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	_, err = i.Verify(raw)
	assert.Equal(t, ErrExpired, err)
}

func TestVerifyMalformed(t *testing.T) {
	i := newTestIssuer(t, "s3cret")

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := i.Verify(raw)
		assert.Equal(t, ErrMalformed, err, "raw=%q", raw)
	}
}
