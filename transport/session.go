// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
)

// defaultIdleTimeout closes a session that has sent or received
// nothing for this long. The reaper ticks at defaultIdleCheckInterval,
// mirroring the cleanup-ticker shape used elsewhere in this node.
const (
	defaultIdleTimeout      = 10 * time.Minute
	defaultIdleCheckInterval = 30 * time.Second
)

// Conn is the minimal surface Session needs from a transport
// connection; *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one encrypted, authenticated connection to a peer, after
// the handshake has completed. recv() yields decrypted JSON-RPC
// payloads in arrival order; send() queues a payload for delivery.
type Session struct {
	conn       Conn
	sessionKey []byte
	localID    string
	peerID     string
	identity   *crypto.NodeIdentity

	writeMu sync.Mutex
	lastActivity int64 // unix nano, via time.Now().UnixNano()
	lastMu  sync.RWMutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(conn Conn, identity *crypto.NodeIdentity, result *handshakeResult) *Session {
	s := &Session{
		conn:       conn,
		sessionKey: result.sessionKey,
		localID:    string(identity.NodeID()),
		peerID:     result.peerNodeID,
		identity:   identity,
		closed:     make(chan struct{}),
	}
	s.touch()
	go s.runIdleReaper()
	return s
}

// PeerNodeID returns the remote side's node ID, established during
// the handshake.
func (s *Session) PeerNodeID() string {
	return s.peerID
}

func (s *Session) touch() {
	s.lastMu.Lock()
	s.lastActivity = time.Now().UnixNano()
	s.lastMu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.lastMu.RLock()
	last := s.lastActivity
	s.lastMu.RUnlock()
	return time.Since(time.Unix(0, last))
}

func (s *Session) runIdleReaper() {
	ticker := time.NewTicker(defaultIdleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.idleFor() > defaultIdleTimeout {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Send encrypts value as the inner JSON-RPC payload, signs the frame,
// and writes it to the socket. It returns once the frame has been
// queued to the underlying connection.
func (s *Session) Send(value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("transport: marshal payload: %w", err)
	}

	sealed, err := crypto.SealAESGCM(s.sessionKey, payload, nil)
	if err != nil {
		return dawnerr.New(dawnerr.CodeCrypto, "encrypt frame failed", err)
	}
	nonce, ciphertext := sealed[:12], sealed[12:]

	sigInput := sha256.New()
	sigInput.Write(nonce)
	sigInput.Write(ciphertext)
	sigInput.Write([]byte(s.localID))
	sig := s.identity.Sign(sigInput.Sum(nil))

	env := encryptedEnvelope{
		Type:       envelopeEncrypted,
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
		Signature:  hex.EncodeToString(sig),
		Sender:     s.localID,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	s.touch()
	return nil
}

// Recv blocks until the next decrypted JSON-RPC payload arrives,
// ctx is cancelled, or the session closes. Decryption or signature
// failure closes the session and returns its error.
func (s *Session) Recv(ctx context.Context) (json.RawMessage, error) {
	type result struct {
		payload json.RawMessage
		err     error
	}
	resCh := make(chan result, 1)

	go func() {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			resCh <- result{err: fmt.Errorf("transport: read frame: %w", err)}
			return
		}
		payload, err := s.decodeFrame(raw)
		resCh <- result{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-s.closed:
		return nil, fmt.Errorf("transport: session closed")
	case r := <-resCh:
		if r.err != nil {
			s.Close()
			return nil, r.err
		}
		s.touch()
		return r.payload, nil
	}
}

func (s *Session) decodeFrame(raw []byte) (json.RawMessage, error) {
	kind, err := peekType(raw)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed frame", err)
	}
	if kind != envelopeEncrypted {
		return nil, dawnerr.New(dawnerr.CodeProtocol, fmt.Sprintf("unexpected frame type %q", kind), nil)
	}

	var env encryptedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed encrypted envelope", err)
	}

	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed nonce", err)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed ciphertext", err)
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed signature", err)
	}

	sigInput := sha256.New()
	sigInput.Write(nonce)
	sigInput.Write(ciphertext)
	sigInput.Write([]byte(env.Sender))

	peerPubKey, err := s.peerPublicKey(env.Sender)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyEd25519(peerPubKey, sigInput.Sum(nil), sig) {
		return nil, dawnerr.New(dawnerr.CodeCrypto, "frame signature verification failed", nil)
	}

	plaintext, err := crypto.OpenAESGCM(s.sessionKey, append(nonce, ciphertext...), nil)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeCrypto, "frame decryption failed", err)
	}
	return json.RawMessage(plaintext), nil
}

// peerPublicKey looks up a peer's long-term Ed25519 public key
// by node ID (by hex-decoding the node_id itself, since node_id is
// defined as lowercase hex of the public key).
func (s *Session) peerPublicKey(nodeID string) ([]byte, error) {
	if nodeID != s.peerID {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "frame sender does not match session peer", nil)
	}
	pub, err := hex.DecodeString(nodeID)
	if err != nil {
		return nil, dawnerr.New(dawnerr.CodeProtocol, "malformed sender node_id", err)
	}
	return pub, nil
}

// Close closes the underlying connection and stops the idle reaper.
// Safe to call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
