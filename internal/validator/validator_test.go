package validator

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/internal/audit"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
	"github.com/dawn-project/dawnnode/internal/trust"
)

func newTestValidator(t *testing.T, rejectUnknown bool) (*Validator, *trust.Manager) {
	t.Helper()
	dir := t.TempDir()
	log, err := audit.Open(dir, "node-a")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	tm, err := trust.Open(dir, log)
	require.NoError(t, err)

	return New(tm, log, rejectUnknown), tm
}

func signedTranscript(t *testing.T) (pub ed25519.PublicKey, transcript, sig []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	transcript = []byte("handshake-transcript")
	return pub, transcript, ed25519.Sign(priv, transcript)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	v, _ := newTestValidator(t, false)
	pub, transcript, sig := signedTranscript(t)
	sig[0] ^= 0xFF

	err := v.Validate(DirectionAccept, "peer-1", hex.EncodeToString(pub), transcript, sig)
	require.Error(t, err)
	assert.True(t, dawnerr.Is(err, dawnerr.CodeCrypto))
}

func TestValidatePromotesUnknownWhenPermissive(t *testing.T) {
	v, tm := newTestValidator(t, false)
	pub, transcript, sig := signedTranscript(t)

	err := v.Validate(DirectionAccept, "peer-1", hex.EncodeToString(pub), transcript, sig)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelVerified, tm.Level("peer-1"))
}

func TestValidateRejectsUnknownWhenPolicyStrict(t *testing.T) {
	v, tm := newTestValidator(t, true)
	pub, transcript, sig := signedTranscript(t)

	err := v.Validate(DirectionAccept, "peer-1", hex.EncodeToString(pub), transcript, sig)
	require.Error(t, err)
	assert.True(t, dawnerr.Is(err, dawnerr.CodeTrust))
	assert.Equal(t, trust.LevelUnknown, tm.Level("peer-1"))
}

func TestValidateRejectsUntrustedPeer(t *testing.T) {
	v, tm := newTestValidator(t, false)
	pub, transcript, sig := signedTranscript(t)

	require.NoError(t, tm.AddTrustedPeer("peer-1", hex.EncodeToString(pub), trust.LevelUntrusted, ""))

	err := v.Validate(DirectionAccept, "peer-1", hex.EncodeToString(pub), transcript, sig)
	assert.Error(t, err)
}

func TestValidateRefreshesTrustedPeer(t *testing.T) {
	v, tm := newTestValidator(t, false)
	pub, transcript, sig := signedTranscript(t)

	require.NoError(t, tm.AddTrustedPeer("peer-1", hex.EncodeToString(pub), trust.LevelTrusted, ""))

	err := v.Validate(DirectionAttempt, "peer-1", hex.EncodeToString(pub), transcript, sig)
	require.NoError(t, err)

	rec, ok := tm.Get("peer-1")
	require.True(t, ok)
	assert.False(t, rec.LastVerifiedAt.IsZero())
}

func TestSetRejectUnknownTakesEffectImmediately(t *testing.T) {
	v, _ := newTestValidator(t, false)
	pub, transcript, sig := signedTranscript(t)

	v.SetRejectUnknown(true)
	err := v.Validate(DirectionAccept, "peer-1", hex.EncodeToString(pub), transcript, sig)
	assert.Error(t, err)
}
