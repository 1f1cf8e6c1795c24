// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/internal/authz"
	"github.com/dawn-project/dawnnode/internal/logger"
	"github.com/dawn-project/dawnnode/registry"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataRoot = t.TempDir()
	cfg.Node.Address = "ws://127.0.0.1:0"

	n, err := New(cfg, logger.NewDefaultLogger())
	require.NoError(t, err)
	t.Cleanup(func() { n.Audit.Close(); n.Peers.Close() })
	return n
}

func TestParseMethodGrammar(t *testing.T) {
	cases := []struct {
		method string
		want   target
	}{
		{"translate/run", target{agentID: "translate", operation: "run"}},
		{"node-b:translate/run", target{nodeID: "node-b", agentID: "translate", operation: "run"}},
		{"node/list_agents", target{isNode: true, operation: "list_agents"}},
		{"ping", target{operation: "ping"}},
	}
	for _, c := range cases {
		got := parseMethod(c.method)
		require.Equal(t, c.want, got, c.method)
	}
}

func TestRouteRequestRejectsUnauthorizedSender(t *testing.T) {
	n := newTestNode(t)
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "node/get_info"}

	resp := n.routeRequest(context.Background(), "stranger-node-id", req)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpcCodeUnauthorized, resp.Error.Code)
}

func TestRouteRequestServesBuiltinGetInfoWhenAuthorized(t *testing.T) {
	n := newTestNode(t)
	n.Authz.Grant("caller", authz.PermissionNodeAdmin)

	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "node/get_info"}
	resp := n.routeRequest(context.Background(), "caller", req)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestRouteRequestRejectsRateLimitedSender(t *testing.T) {
	n := newTestNode(t)
	n.Authz.Grant("caller", authz.PermissionNodeAdmin)
	n.RateLimit.Reset("caller")

	// Exhaust the bucket, then the next call must be refused.
	var last Response
	for i := 0; i < 200; i++ {
		req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "node/get_info"}
		last = n.routeRequest(context.Background(), "caller", req)
		if last.Error != nil && last.Error.Code == rpcCodeRateLimited {
			break
		}
	}
	require.NotNil(t, last.Error)
	require.Equal(t, rpcCodeRateLimited, last.Error.Code)
	require.Contains(t, last.Error.Data, "retry_after")
}

func TestLocalAgentDispatchRoundTrip(t *testing.T) {
	n := newTestNode(t)
	n.Authz.Grant("caller", authz.PermissionAgentExecute)

	n.RegisterLocalAgent("echo", "Echo", "", []registry.Capability{{Kind: "tool", Name: "echo"}},
		func(ctx context.Context, operation string, params []byte) (interface{}, error) {
			return map[string]string{"operation": operation}, nil
		})

	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "echo/ping"}
	resp := n.routeRequest(context.Background(), "caller", req)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.JSONEq(t, `{"operation":"ping"}`, string(data))
}

func TestLocalAgentDispatchUnknownMethodNotFound(t *testing.T) {
	n := newTestNode(t)
	n.Authz.Grant("caller", authz.PermissionAgentExecute)

	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "missing/run"}
	resp := n.routeRequest(context.Background(), "caller", req)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpcCodeMethodNotFound, resp.Error.Code)
}

func TestUnregisterLocalAgentRemovesFromDispatchAndRegistry(t *testing.T) {
	n := newTestNode(t)
	n.RegisterLocalAgent("echo", "Echo", "", nil, func(ctx context.Context, operation string, params []byte) (interface{}, error) {
		return nil, nil
	})
	require.Len(t, n.Registry.ListAgents(true), 1)

	n.UnregisterLocalAgent("echo")
	require.Empty(t, n.Registry.ListAgents(true))

	_, ok := n.lookupLocalAgent("echo")
	require.False(t, ok)
}

func TestBuiltinListPeersAndGetInfo(t *testing.T) {
	n := newTestNode(t)
	n.Peers.Add("peer-1", "ws://10.0.0.1:7946", "peer-1")

	peers := n.listPeers()
	require.Len(t, peers, 1)
	require.Equal(t, "peer-1", peers[0].NodeID)

	info := n.getInfo()
	require.Equal(t, n.NodeID(), info.NodeID)
	require.Equal(t, 1, info.PeerCount)
}

func TestConnectOutboundFailsFastWithNoKnownAddress(t *testing.T) {
	n := newTestNode(t)
	_, err := n.connectOutbound(context.Background(), "unknown-node-id")
	require.Error(t, err)
}
