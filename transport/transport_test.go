// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/internal/audit"
	"github.com/dawn-project/dawnnode/internal/trust"
	"github.com/dawn-project/dawnnode/internal/validator"
)

type peerFixture struct {
	identity  *crypto.NodeIdentity
	trustMgr  *trust.Manager
	validator *validator.Validator
}

func newPeerFixture(t *testing.T, rejectUnknown bool) *peerFixture {
	t.Helper()
	identity, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	log, err := audit.Open(t.TempDir(), string(identity.NodeID()))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	trustMgr, err := trust.Open(t.TempDir(), log)
	require.NoError(t, err)

	return &peerFixture{
		identity:  identity,
		trustMgr:  trustMgr,
		validator: validator.New(trustMgr, log, rejectUnknown),
	}
}

// trustEachOther seeds each fixture's trust store with the other as a
// TRUSTED peer so the handshake doesn't hinge on UNKNOWN-promotion
// policy for these tests.
func trustEachOther(t *testing.T, a, b *peerFixture) {
	t.Helper()
	require.NoError(t, a.trustMgr.AddTrustedPeer(string(b.identity.NodeID()), hexPub(b.identity), trust.LevelTrusted, "test"))
	require.NoError(t, b.trustMgr.AddTrustedPeer(string(a.identity.NodeID()), hexPub(a.identity), trust.LevelTrusted, "test"))
}

func hexPub(id *crypto.NodeIdentity) string {
	return string(id.NodeID())
}

func startServer(t *testing.T, server *peerFixture, onSession func(*Session)) *httptest.Server {
	t.Helper()
	listener := NewListener(server.identity, server.validator, func(ctx context.Context, s *Session) {
		onSession(s)
	})
	ts := httptest.NewServer(listener.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestHandshakeEstablishesSharedSessionKey(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, false)
	trustEachOther(t, server, client)

	serverSessions := make(chan *Session, 1)
	ts := startServer(t, server, func(s *Session) {
		serverSessions <- s
		<-s.closed
	})

	dialer := NewDialer(client.identity, client.validator)
	clientSession, err := dialer.Dial(context.Background(), wsURL(ts), string(server.identity.NodeID()))
	require.NoError(t, err)
	defer clientSession.Close()

	select {
	case serverSession := <-serverSessions:
		defer serverSession.Close()
		require.Equal(t, clientSession.sessionKey, serverSession.sessionKey)
		require.Equal(t, string(server.identity.NodeID()), clientSession.PeerNodeID())
		require.Equal(t, string(client.identity.NodeID()), serverSession.PeerNodeID())
	case <-time.After(5 * time.Second):
		t.Fatal("server never produced a session")
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, false)
	trustEachOther(t, server, client)

	type payload struct {
		Method string `json:"method"`
	}

	var wg sync.WaitGroup
	wg.Add(1)
	ts := startServer(t, server, func(s *Session) {
		defer wg.Done()
		defer s.Close()
		raw, err := s.Recv(context.Background())
		require.NoError(t, err)
		require.Contains(t, string(raw), "echo/ping")
		require.NoError(t, s.Send(payload{Method: "echo/pong"}))
	})

	dialer := NewDialer(client.identity, client.validator)
	clientSession, err := dialer.Dial(context.Background(), wsURL(ts), string(server.identity.NodeID()))
	require.NoError(t, err)
	defer clientSession.Close()

	require.NoError(t, clientSession.Send(payload{Method: "echo/ping"}))
	raw, err := clientSession.Recv(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(raw), "echo/pong")

	wg.Wait()
}

func TestDialRejectsUntrustedPeer(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, false)

	require.NoError(t, client.trustMgr.AddTrustedPeer(string(server.identity.NodeID()), hexPub(server.identity), trust.LevelUntrusted, "blocked"))

	ts := startServer(t, server, func(s *Session) {
		s.Close()
	})

	dialer := NewDialer(client.identity, client.validator)
	_, err := dialer.Dial(context.Background(), wsURL(ts), string(server.identity.NodeID()))
	require.Error(t, err)
}

func TestDialRejectsUnknownPeerWhenPolicyStrict(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, true)

	ts := startServer(t, server, func(s *Session) {
		s.Close()
	})

	dialer := NewDialer(client.identity, client.validator)
	_, err := dialer.Dial(context.Background(), wsURL(ts), string(server.identity.NodeID()))
	require.Error(t, err)
}

func TestDialRejectsMismatchedExpectedPeerID(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, false)
	trustEachOther(t, server, client)

	ts := startServer(t, server, func(s *Session) {
		s.Close()
	})

	dialer := NewDialer(client.identity, client.validator)
	_, err := dialer.Dial(context.Background(), wsURL(ts), "0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, false)
	trustEachOther(t, server, client)

	ts := startServer(t, server, func(s *Session) {
		<-s.closed
	})

	dialer := NewDialer(client.identity, client.validator)
	clientSession, err := dialer.Dial(context.Background(), wsURL(ts), string(server.identity.NodeID()))
	require.NoError(t, err)

	require.NoError(t, clientSession.Close())
	require.NoError(t, clientSession.Close())
}

func TestRecvReturnsOnContextCancel(t *testing.T) {
	server := newPeerFixture(t, false)
	client := newPeerFixture(t, false)
	trustEachOther(t, server, client)

	ts := startServer(t, server, func(s *Session) {
		<-s.closed
	})

	dialer := NewDialer(client.identity, client.validator)
	clientSession, err := dialer.Dial(context.Background(), wsURL(ts), string(server.identity.NodeID()))
	require.NoError(t, err)
	defer clientSession.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = clientSession.Recv(ctx)
	require.Error(t, err)
}
