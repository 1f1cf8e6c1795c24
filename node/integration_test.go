// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/internal/authz"
	"github.com/dawn-project/dawnnode/internal/logger"
	"github.com/dawn-project/dawnnode/internal/trust"
	"github.com/dawn-project/dawnnode/registry"
)

// newUnstartedNode builds a node without binding any listener, for
// tests that drive the transport layer directly through an
// httptest.Server instead of a real TCP bind.
func newUnstartedNode(t *testing.T) *Node {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataRoot = t.TempDir()
	n, err := New(cfg, logger.NewDefaultLogger())
	require.NoError(t, err)
	t.Cleanup(func() { n.Audit.Close(); n.Peers.Close() })
	return n
}

// trustEachOther seeds each node's trust store with the other's
// node_id, as if a prior out-of-band exchange had already happened.
// node_id doubles as the peer's hex Ed25519 public key.
func trustEachOther(t *testing.T, a, b *Node) {
	t.Helper()
	require.NoError(t, a.Trust.AddTrustedPeer(b.NodeID(), b.NodeID(), trust.LevelTrusted, "test fixture"))
	require.NoError(t, b.Trust.AddTrustedPeer(a.NodeID(), a.NodeID(), trust.LevelTrusted, "test fixture"))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// TestRouteRequestProxiesToRemoteAgent exercises the full cross-node
// path: nodeA receives a request targeting an agent registered on
// nodeB, dials out through the breaker+retry+handshake stack, forwards
// the call, and relays nodeB's reply back unchanged.
func TestRouteRequestProxiesToRemoteAgent(t *testing.T) {
	nodeA := newUnstartedNode(t)
	nodeB := newUnstartedNode(t)
	trustEachOther(t, nodeA, nodeB)

	nodeB.RegisterLocalAgent("greeter", "Greeter", "", []registry.Capability{{Kind: "tool", Name: "greet"}},
		func(ctx context.Context, operation string, params []byte) (interface{}, error) {
			return map[string]string{"greeting": "hello from b"}, nil
		})
	nodeB.Authz.Grant(nodeA.NodeID(), authz.PermissionAgentExecute)
	// routeRequest checks authz for the sender on nodeA too, self included.
	nodeA.Authz.Grant(nodeA.NodeID(), authz.PermissionAgentExecute)

	ts := httptest.NewServer(nodeB.listener.Handler())
	t.Cleanup(ts.Close)
	nodeB.Peers.Add(nodeB.NodeID(), wsURL(ts), nodeB.NodeID())
	nodeA.Peers.Add(nodeB.NodeID(), wsURL(ts), nodeB.NodeID())

	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`7`), Method: nodeB.NodeID() + ":greeter/greet"}
	resp := nodeA.routeRequest(context.Background(), nodeA.NodeID(), req)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.JSONEq(t, `{"greeting":"hello from b"}`, string(data))
}

// TestRouteRequestProxyUnauthorizedOnRemote confirms that when the
// remote side refuses the forwarded call, the JSON-RPC error comes
// back through proxyRemote unchanged rather than being swallowed.
func TestRouteRequestProxyUnauthorizedOnRemote(t *testing.T) {
	nodeA := newUnstartedNode(t)
	nodeB := newUnstartedNode(t)
	trustEachOther(t, nodeA, nodeB)

	nodeB.RegisterLocalAgent("greeter", "Greeter", "", nil,
		func(ctx context.Context, operation string, params []byte) (interface{}, error) {
			return "unreachable", nil
		})
	// Deliberately do not grant nodeA AGENT_EXECUTE on nodeB. nodeA does
	// allow itself, so the refusal comes from nodeB.
	nodeA.Authz.Grant(nodeA.NodeID(), authz.PermissionAgentExecute)

	ts := httptest.NewServer(nodeB.listener.Handler())
	t.Cleanup(ts.Close)
	nodeA.Peers.Add(nodeB.NodeID(), wsURL(ts), nodeB.NodeID())

	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`9`), Method: nodeB.NodeID() + ":greeter/greet"}
	resp := nodeA.routeRequest(context.Background(), nodeA.NodeID(), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpcCodeUnauthorized, resp.Error.Code)
}

func TestConnStateMachineTracksDialFailure(t *testing.T) {
	n := newUnstartedNode(t)
	n.Peers.Add("ghost-peer", "ws://127.0.0.1:1", "ghost-peer")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := n.connectOutbound(ctx, "ghost-peer")
	require.Error(t, err)

	n.mu.RLock()
	c, ok := n.conns["ghost-peer"]
	n.mu.RUnlock()
	require.True(t, ok)
	require.Equal(t, ConnFailed, c.state)
}

func TestConnectOutboundReusesExistingSession(t *testing.T) {
	nodeA := newUnstartedNode(t)
	nodeB := newUnstartedNode(t)
	trustEachOther(t, nodeA, nodeB)

	ts := httptest.NewServer(nodeB.listener.Handler())
	t.Cleanup(ts.Close)
	nodeA.Peers.Add(nodeB.NodeID(), wsURL(ts), nodeB.NodeID())

	s1, err := nodeA.connectOutbound(context.Background(), nodeB.NodeID())
	require.NoError(t, err)

	s2, err := nodeA.connectOutbound(context.Background(), nodeB.NodeID())
	require.NoError(t, err)
	require.Same(t, s1, s2)
}
