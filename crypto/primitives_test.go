package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHKDFSHA256Deterministic(t *testing.T) {
	secret := []byte("shared-secret")
	salt := []byte("salt")
	info := []byte("dawn-transport-v1")

	k1, err := HKDFSHA256(secret, salt, info, 32)
	require.NoError(t, err)
	k2, err := HKDFSHA256(secret, salt, info, 32)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)

	k3, err := HKDFSHA256(secret, []byte("other-salt"), info, 32)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestSealOpenAESGCMRoundTrip(t *testing.T) {
	key, err := RandomBytes(32)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox")
	aad := []byte("associated-data")

	sealed, err := SealAESGCM(key, plaintext, aad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := OpenAESGCM(key, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenAESGCMRejectsTamperedAAD(t *testing.T) {
	key, err := RandomBytes(32)
	require.NoError(t, err)

	sealed, err := SealAESGCM(key, []byte("secret"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = OpenAESGCM(key, sealed, []byte("aad-b"))
	assert.Error(t, err)
}

func TestSignVerifyEd25519(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	msg := []byte("handshake-transcript")
	sig := id.Sign(msg)
	assert.True(t, VerifyEd25519(id.PublicKey(), msg, sig))
	assert.False(t, VerifyEd25519(id.PublicKey(), []byte("tampered"), sig))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
}
