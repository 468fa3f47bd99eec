package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	digest, err := hasher.Hash("Sup3r$ecret")
	require.NoError(t, err)
	require.NotEmpty(t, digest)
	assert.NotContains(t, digest, "Sup3r$ecret")

	ok, err := hasher.Verify("Sup3r$ecret", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong password", digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashSaltedPerCall(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	first, err := hasher.Hash("Sup3r$ecret")
	require.NoError(t, err)
	second, err := hasher.Hash("Sup3r$ecret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPasswordVerifyMalformedDigest(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	_, err := hasher.Verify("anything", "not-a-bcrypt-digest")
	assert.Error(t, err)
}

func TestPasswordHasherClampsBadCost(t *testing.T) {
	hasher := NewPasswordHasher(99)
	assert.Equal(t, DefaultBcryptCost, hasher.cost)

	hasher = NewPasswordHasher(-1)
	assert.Equal(t, DefaultBcryptCost, hasher.cost)
}
