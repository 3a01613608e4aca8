package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	params := Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}
	hash, err := CreatePasswordHash("correct horse", params)
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	require.NoError(t, VerifyPassword(hash, "correct horse"))
	require.ErrorIs(t, VerifyPassword(hash, "battery staple"), ErrInvalidCredentials)
	require.ErrorIs(t, VerifyPassword("plain", "x"), ErrInvalidPasswordHash)
}

func TestVerifyPassword_AcceptsBcrypt(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("legacy"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, VerifyPassword(string(hash), "legacy"))
	require.ErrorIs(t, VerifyPassword(string(hash), "other"), ErrInvalidCredentials)
}

func TestNeedsRehash(t *testing.T) {
	t.Parallel()

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy"), bcrypt.MinCost)
	require.NoError(t, err)
	weak, err := CreatePasswordHash("pw", Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	require.NoError(t, err)
	current, err := HashPassword("pw")
	require.NoError(t, err)

	assert.True(t, NeedsRehash(string(legacy)))
	assert.True(t, NeedsRehash(weak))
	assert.False(t, NeedsRehash(current))
	assert.False(t, NeedsRehash("hash:pw"))
	assert.ErrorIs(t, VerifyPassword("$argon2id$v=19$m=1,t=1,p=1$!!$!!", "pw"), ErrInvalidPasswordHash)
}
