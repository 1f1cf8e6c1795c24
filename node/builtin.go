// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"fmt"

	"github.com/dawn-project/dawnnode/internal/peerstore"
)

// nodeInfo is the result shape of node/get_info.
type nodeInfo struct {
	NodeID    string `json:"node_id"`
	State     string `json:"state"`
	PeerCount int    `json:"peer_count"`
	Agents    int    `json:"local_agent_count"`
}

// dispatchBuiltin serves the three built-in node/* operations spec.md
// names: list_agents, list_peers, get_info. Anything else is
// unrecognized, surfaced the same way an unknown agent method would be.
func (n *Node) dispatchBuiltin(ctx context.Context, senderNodeID, operation string, params []byte) (interface{}, error) {
	switch operation {
	case "list_agents":
		return n.Registry.ListAgents(true), nil
	case "list_peers":
		return n.listPeers(), nil
	case "get_info":
		return n.getInfo(), nil
	default:
		return nil, fmt.Errorf("unknown node operation %q", operation)
	}
}

func (n *Node) listPeers() []peerstore.Record {
	return n.Peers.List()
}

func (n *Node) getInfo() nodeInfo {
	n.mu.RLock()
	agentCount := len(n.localAgents)
	n.mu.RUnlock()

	return nodeInfo{
		NodeID:    n.NodeID(),
		State:     string(n.State()),
		PeerCount: len(n.Peers.List()),
		Agents:    agentCount,
	}
}
