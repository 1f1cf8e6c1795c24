// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package discovery runs the node's three advisory peer-discovery
// sources: bootstrap, local-network announce, and gossip. None of
// them confer trust — a peer surfaced by discovery is only a
// candidate the routing layer may consider connecting to.
package discovery

import (
	"context"

	"github.com/dawn-project/dawnnode/internal/peerstore"
	"github.com/dawn-project/dawnnode/registry"
)

// gossipSchemaVersion tags every gossip payload. An unknown version on
// receipt is dropped and logged, never a connection failure.
const gossipSchemaVersion = 1

// PeerSample is the §6 gossip/peers payload: a bounded sample of
// known peers.
type PeerSample struct {
	SchemaVersion int               `json:"schema_version"`
	Peers         []peerstore.Record `json:"peers"`
}

// AgentDelta is the §6 gossip/agents payload: the sending node's full
// agent-registry snapshot (the receiving side's CRDT merge sorts out
// what's actually new).
type AgentDelta struct {
	SchemaVersion int               `json:"schema_version"`
	Entries       []registry.Entry `json:"entries"`
}

// Connector abstracts C14's outbound-connect path (breaker + retry +
// handshake) so discovery never has to know about sessions directly.
type Connector interface {
	Connect(ctx context.Context, address, expectedNodeID string) error
}

// Gossiper abstracts sending a gossip payload to an already-connected
// peer and listing which peers are currently connected.
type Gossiper interface {
	ConnectedPeers() []string
	SendGossip(ctx context.Context, peerNodeID string, peers PeerSample, agents AgentDelta) error
}
