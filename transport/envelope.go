// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package transport implements the node's encrypted wire protocol: an
// X25519 ephemeral handshake authenticated by the long-term Ed25519
// identity, followed by AES-256-GCM framed, per-message-signed JSON-RPC
// traffic over a WebSocket connection.
package transport

import "encoding/json"

// envelopeType discriminates the two wire message shapes.
type envelopeType string

const (
	envelopeKeyExchange envelopeType = "key_exchange"
	envelopeEncrypted   envelopeType = "encrypted"
)

// keyExchangeEnvelope is sent by each side immediately after the
// WebSocket upgrade, before any JSON-RPC message is accepted. The
// responder sends one first with PublicKey set to its ephemeral HPKE
// public key; the initiator replies with PublicKey set to the HPKE
// encapsulated key (enc) instead, since the two sides play different
// roles in the KEM.
type keyExchangeEnvelope struct {
	Type      envelopeType `json:"type"`
	PublicKey string       `json:"public_key"`
	NodeID    string       `json:"node_id"`
	Signature string       `json:"signature"`
}

// encryptedEnvelope carries one AES-256-GCM-sealed JSON-RPC payload.
type encryptedEnvelope struct {
	Type       envelopeType `json:"type"`
	Nonce      string       `json:"nonce"`
	Ciphertext string       `json:"ciphertext"`
	Signature  string       `json:"signature"`
	Sender     string       `json:"sender"`
}

// peekType reads only the discriminator field, so the reader can
// decide which concrete envelope to unmarshal into.
func peekType(raw []byte) (envelopeType, error) {
	var probe struct {
		Type envelopeType `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	return probe.Type, nil
}
