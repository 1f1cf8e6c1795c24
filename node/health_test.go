// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyFalseBeforeStart(t *testing.T) {
	n := newTestNode(t)
	require.False(t, n.Ready())
}

func TestLiveTrueUntilStopped(t *testing.T) {
	n := newUnstartedNode(t)
	require.True(t, n.Live())
}

func TestCheckIdentityReportsNodeID(t *testing.T) {
	n := newTestNode(t)
	ok, detail := n.CheckIdentity()
	require.True(t, ok)
	require.Equal(t, n.NodeID(), detail)
}

func TestCheckAuditLogWritableByDefault(t *testing.T) {
	n := newTestNode(t)
	ok, _ := n.CheckAuditLog()
	require.True(t, ok)
}

func TestPeerStateCountsReflectsConnTable(t *testing.T) {
	n := newUnstartedNode(t)
	n.Peers.Add("ghost", "ws://127.0.0.1:1", "ghost")
	n.trackConnState("ghost", "ws://127.0.0.1:1", ConnFailed)

	counts := n.PeerStateCounts()
	require.Equal(t, 1, counts[string(ConnFailed)])
}
