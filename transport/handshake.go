// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/crypto/keys"
)

// transportSessionInfo is the HPKE info string both sides bind the
// handshake to; transportExportLen is the exported session key size.
const (
	transportSessionInfo = "dawn-transport-v1"
	transportExportLen   = 32
)

// handshakeTranscript computes SHA-256(kem_bytes || local_node_id ||
// peer_node_id_or_empty), the bytes each side signs with its long-term
// Ed25519 key. kem_bytes is the responder's ephemeral public key on
// the first message, and the initiator's HPKE encapsulated key on the
// second — whichever KEM value that message carries.
func handshakeTranscript(kemBytes []byte, localNodeID, peerNodeID string) []byte {
	h := sha256.New()
	h.Write(kemBytes)
	h.Write([]byte(localNodeID))
	h.Write([]byte(peerNodeID))
	return h.Sum(nil)
}

// sessionKeySalt sorts the two node IDs lexicographically so both
// sides of a connection derive the identical HPKE export context
// regardless of which side dialed.
func sessionKeySalt(nodeIDA, nodeIDB string) []byte {
	ids := []string{nodeIDA, nodeIDB}
	sort.Strings(ids)
	return []byte(ids[0] + ids[1])
}

// handshakeResult holds everything derived once both key_exchange
// envelopes have been sent and received.
type handshakeResult struct {
	sessionKey []byte
	peerNodeID string
}

// responderKeyExchange is the accept side's ephemeral HPKE receiver
// keypair, held across the two handshake messages.
type responderKeyExchange struct {
	keyPair crypto.KeyPair
}

func newResponderKeyExchange() (*responderKeyExchange, error) {
	kp, err := keys.GenerateX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("transport: generate responder key: %w", err)
	}
	return &responderKeyExchange{keyPair: kp}, nil
}

func (r *responderKeyExchange) publicBytes() []byte {
	return r.keyPair.(*keys.X25519KeyPair).PublicBytesKey()
}

// firstMessage signs the transcript over our ephemeral public key and
// returns the envelope to send first, before we've heard from the
// initiator at all — so peerNodeID is always empty here.
func (r *responderKeyExchange) firstMessage(identity *crypto.NodeIdentity) keyExchangeEnvelope {
	pub := r.publicBytes()
	transcript := handshakeTranscript(pub, string(identity.NodeID()), "")
	sig := identity.Sign(transcript)
	return keyExchangeEnvelope{
		Type:      envelopeKeyExchange,
		PublicKey: hex.EncodeToString(pub),
		NodeID:    string(identity.NodeID()),
		Signature: sigHex(sig),
	}
}

// completeAsResponder verifies the initiator's envelope (the caller
// has already run Validate against its signature) and opens the HPKE
// encapsulation to recover the shared session key.
func (r *responderKeyExchange) completeAsResponder(localNodeID string, initiatorEnvelope keyExchangeEnvelope) (*handshakeResult, error) {
	enc, err := hex.DecodeString(initiatorEnvelope.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("transport: decode encapsulated key: %w", err)
	}
	salt := sessionKeySalt(localNodeID, initiatorEnvelope.NodeID)
	sessionKey, err := keys.HPKEOpenSharedSecretWithPriv(
		r.keyPair.(*keys.X25519KeyPair).PrivateKey(), enc,
		[]byte(transportSessionInfo), salt, transportExportLen)
	if err != nil {
		return nil, fmt.Errorf("transport: open HPKE encapsulation: %w", err)
	}
	return &handshakeResult{sessionKey: sessionKey, peerNodeID: initiatorEnvelope.NodeID}, nil
}

// completeAsInitiator runs the dial side's half of the handshake given
// the responder's first envelope (the caller has already run Validate
// against its signature): it encapsulates to the responder's ephemeral
// public key via HPKE, producing the shared session key and the
// envelope to send back.
func completeAsInitiator(identity *crypto.NodeIdentity, responderEnvelope keyExchangeEnvelope) (keyExchangeEnvelope, *handshakeResult, error) {
	responderPubBytes, err := hex.DecodeString(responderEnvelope.PublicKey)
	if err != nil {
		return keyExchangeEnvelope{}, nil, fmt.Errorf("transport: decode responder public key: %w", err)
	}
	responderPub, err := ecdh.X25519().NewPublicKey(responderPubBytes)
	if err != nil {
		return keyExchangeEnvelope{}, nil, fmt.Errorf("transport: parse responder public key: %w", err)
	}

	localNodeID := string(identity.NodeID())
	salt := sessionKeySalt(localNodeID, responderEnvelope.NodeID)
	enc, sessionKey, err := keys.HPKEDeriveSharedSecretToPeer(responderPub, []byte(transportSessionInfo), salt, transportExportLen)
	if err != nil {
		return keyExchangeEnvelope{}, nil, fmt.Errorf("transport: HPKE encapsulate: %w", err)
	}

	transcript := handshakeTranscript(enc, localNodeID, responderEnvelope.NodeID)
	sig := identity.Sign(transcript)
	ourEnv := keyExchangeEnvelope{
		Type:      envelopeKeyExchange,
		PublicKey: hex.EncodeToString(enc),
		NodeID:    localNodeID,
		Signature: sigHex(sig),
	}
	return ourEnv, &handshakeResult{sessionKey: sessionKey, peerNodeID: responderEnvelope.NodeID}, nil
}

func sigHex(sig []byte) string {
	return hex.EncodeToString(sig)
}
