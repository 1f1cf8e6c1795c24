package trust

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndVerifyBootstrapCertificateRoundTrip(t *testing.T) {
	key := []byte("test-signing-key")

	token, err := NewBootstrapCertificate(key, "node-b", "pubkey-b", LevelTrusted, time.Hour)
	require.NoError(t, err)

	claims, err := VerifyBootstrapCertificate(token, key)
	require.NoError(t, err)
	assert.Equal(t, "node-b", claims.Subject)
	assert.Equal(t, "pubkey-b", claims.PublicKey)
	assert.Equal(t, string(LevelTrusted), claims.Level)
}

func TestVerifyBootstrapCertificateRejectsWrongKey(t *testing.T) {
	token, err := NewBootstrapCertificate([]byte("key-a"), "node-b", "pubkey-b", LevelTrusted, time.Hour)
	require.NoError(t, err)

	_, err = VerifyBootstrapCertificate(token, []byte("key-b"))
	assert.Error(t, err)
}

func TestVerifyBootstrapCertificateRejectsExpired(t *testing.T) {
	key := []byte("test-signing-key")
	claims := BootstrapClaims{
		Subject: "node-b", PublicKey: "pubkey-b", Level: string(LevelTrusted),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = VerifyBootstrapCertificate(token, key)
	assert.Error(t, err)
}

func TestNewBootstrapCertificateRejectsNonBootstrapLevel(t *testing.T) {
	_, err := NewBootstrapCertificate([]byte("k"), "node-b", "pubkey-b", LevelVerified, time.Hour)
	assert.Error(t, err)
}

func TestApplyBootstrapCertificateSeedsTrustRecord(t *testing.T) {
	key := []byte("test-signing-key")
	m := newTestManager(t)

	token, err := NewBootstrapCertificate(key, "node-c", "pubkey-c", LevelBootstrap, time.Hour)
	require.NoError(t, err)

	require.NoError(t, m.ApplyBootstrapCertificate(token, key))
	assert.Equal(t, LevelBootstrap, m.Level("node-c"))
}
