// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
	"github.com/dawn-project/dawnnode/internal/validator"
)

// SessionHandler is invoked once per accepted, handshaken session.
type SessionHandler func(ctx context.Context, s *Session)

// Listener accepts inbound WebSocket connections, performs the
// connect-accept handshake through a validator.Validator, and hands
// completed sessions to a SessionHandler.
type Listener struct {
	identity  *crypto.NodeIdentity
	validator *validator.Validator
	handler   SessionHandler
	upgrader  websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewListener constructs a Listener. handler runs in its own goroutine
// per session.
func NewListener(identity *crypto.NodeIdentity, v *validator.Validator, handler SessionHandler) *Listener {
	return &Listener{
		identity:  identity,
		validator: v,
		handler:   handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[*Session]struct{}),
	}
}

// Handler returns an http.Handler that upgrades to a WebSocket and
// runs the server side of the handshake on each connection.
func (l *Listener) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		session, err := l.acceptHandshake(conn)
		if err != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseProtocolError, "SIGNATURE_FAILED"))
			conn.Close()
			return
		}

		l.track(session)
		defer l.untrack(session)
		l.handler(r.Context(), session)
	})
}

// acceptHandshake runs the server (accept) side of the C7 handshake:
// send our ephemeral key_exchange envelope first, then read and
// validate the initiator's encapsulation envelope.
func (l *Listener) acceptHandshake(conn *websocket.Conn) (*Session, error) {
	responder, err := newResponderKeyExchange()
	if err != nil {
		return nil, err
	}

	ourEnv := responder.firstMessage(l.identity)
	ourRaw, err := json.Marshal(ourEnv)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal key_exchange: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, ourRaw); err != nil {
		return nil, fmt.Errorf("transport: write key_exchange: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport: read key_exchange: %w", err)
	}

	kind, err := peekType(raw)
	if err != nil || kind != envelopeKeyExchange {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "expected key_exchange envelope", err)
	}
	var peerEnv keyExchangeEnvelope
	if err := json.Unmarshal(raw, &peerEnv); err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed key_exchange envelope", err)
	}

	enc, err := hex.DecodeString(peerEnv.PublicKey)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed encapsulated key", err)
	}
	sig, err := hex.DecodeString(peerEnv.Signature)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed peer signature", err)
	}
	transcript := handshakeTranscript(enc, peerEnv.NodeID, string(l.identity.NodeID()))
	if err := l.validator.Validate(validator.DirectionAccept, peerEnv.NodeID, peerEnv.NodeID, transcript, sig); err != nil {
		return nil, err
	}

	result, err := responder.completeAsResponder(string(l.identity.NodeID()), peerEnv)
	if err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Time{})
	return newSession(conn, l.identity, result), nil
}

func (l *Listener) track(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[s] = struct{}{}
}

func (l *Listener) untrack(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, s)
}

// ActiveSessionCount returns the number of currently tracked sessions.
func (l *Listener) ActiveSessionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// Close closes every tracked session.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for s := range l.sessions {
		s.Close()
	}
	l.sessions = make(map[*Session]struct{})
	return nil
}
