package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func TestManager_IssueAndVerify(t *testing.T) {
	t.Parallel()

	m, err := NewManager("s3cret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := m.Issue("user-1", "librarian", issuedAt)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(time.Hour), expiresAt)

	claims, err := m.Verify(token, issuedAt.Add(59*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "librarian", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestManager_VerifyRejects(t *testing.T) {
	t.Parallel()

	m, err := NewManager("s3cret", time.Hour)
	require.NoError(t, err)
	token, _, err := m.Issue("user-1", "student", issuedAt)
	require.NoError(t, err)

	other, err := NewManager("another", time.Hour)
	require.NoError(t, err)

	_, err = m.Verify(token, issuedAt.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	_, err = other.Verify(token, issuedAt)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong key")

	_, err = m.Verify("not.a.token", issuedAt)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(unsigned, issuedAt)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	_, err := NewManager("", time.Hour)
	require.ErrorIs(t, err, ErrMissingSecret)

	m, err := NewManager("k", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, m.Lifetime())

	_, _, err = m.Issue("", "student", issuedAt)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
