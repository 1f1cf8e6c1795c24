// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
	"github.com/dawn-project/dawnnode/internal/validator"
)

const defaultDialTimeout = 10 * time.Second

// Dialer opens outbound connections to peers and performs the
// connect-attempt side of the handshake.
type Dialer struct {
	identity  *crypto.NodeIdentity
	validator *validator.Validator

	DialTimeout time.Duration
}

// NewDialer constructs a Dialer with the default dial timeout.
func NewDialer(identity *crypto.NodeIdentity, v *validator.Validator) *Dialer {
	return &Dialer{identity: identity, validator: v, DialTimeout: defaultDialTimeout}
}

// Dial connects to addr (a ws:// or wss:// URL), announcing peerNodeID
// as the node it expects to reach, and runs the attempt side of the
// handshake. peerNodeID may be empty when the caller doesn't know in
// advance who it's dialing (pure address-based bootstrap).
func (d *Dialer) Dial(ctx context.Context, addr, peerNodeID string) (*Session, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: d.DialTimeout}

	dialCtx := ctx
	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, addr, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s failed (HTTP %d): %w", addr, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: dial %s failed: %w", addr, err)
	}

	session, err := d.attemptHandshake(conn, peerNodeID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// attemptHandshake runs the client (attempt) side of the C7 handshake:
// read the responder's ephemeral key_exchange envelope first, validate
// it, then encapsulate to it and send our own envelope back.
func (d *Dialer) attemptHandshake(conn *websocket.Conn, expectedPeerNodeID string) (*Session, error) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport: read key_exchange: %w", err)
	}
	kind, err := peekType(raw)
	if err != nil || kind != envelopeKeyExchange {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "expected key_exchange envelope", err)
	}
	var responderEnv keyExchangeEnvelope
	if err := json.Unmarshal(raw, &responderEnv); err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed key_exchange envelope", err)
	}
	if expectedPeerNodeID != "" && responderEnv.NodeID != expectedPeerNodeID {
		return nil, dawnerr.New(dawnerr.CodeTrust, "peer node_id does not match expected bootstrap identity", nil).
			WithDetails("expected", expectedPeerNodeID).WithDetails("actual", responderEnv.NodeID)
	}

	responderPub, err := hex.DecodeString(responderEnv.PublicKey)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed responder public key", err)
	}
	sig, err := hex.DecodeString(responderEnv.Signature)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed responder signature", err)
	}
	transcript := handshakeTranscript(responderPub, responderEnv.NodeID, "")
	if err := d.validator.Validate(validator.DirectionAttempt, responderEnv.NodeID, responderEnv.NodeID, transcript, sig); err != nil {
		return nil, err
	}

	ourEnv, result, err := completeAsInitiator(d.identity, responderEnv)
	if err != nil {
		return nil, err
	}
	ourRaw, err := json.Marshal(ourEnv)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal key_exchange: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, ourRaw); err != nil {
		return nil, fmt.Errorf("transport: write key_exchange: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	return newSession(conn, d.identity, result), nil
}
