// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dawn-project/dawnnode/discovery"
	"github.com/dawn-project/dawnnode/internal/breaker"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
	"github.com/dawn-project/dawnnode/internal/logger"
	"github.com/dawn-project/dawnnode/transport"
)

// ConnState is a single outbound or inbound peer connection's position
// in the connection state machine. Only CONNECTED permits Send.
type ConnState string

const (
	ConnDisconnected ConnState = "DISCONNECTED"
	ConnConnecting   ConnState = "CONNECTING"
	ConnHandshaking  ConnState = "HANDSHAKING"
	ConnConnected    ConnState = "CONNECTED"
	ConnClosed       ConnState = "CLOSED"
	ConnFailed       ConnState = "FAILED"
)

type peerConn struct {
	nodeID  string
	address string
	state   ConnState
	session *transport.Session
}

// connectOutbound returns an existing CONNECTED session for nodeID, or
// opens a new one through the breaker and retry policy, wrapped around
// the dialer's handshake. The breaker and retry are consulted even
// when nodeID is already known from a prior failed attempt, so a
// tripped breaker fails fast without dialing again.
func (n *Node) connectOutbound(ctx context.Context, nodeIDOrAddress string) (*transport.Session, error) {
	address, expectedNodeID := n.resolveAddress(nodeIDOrAddress)
	if address == "" {
		return nil, dawnerr.New(dawnerr.CodeNotFound, "no known address for peer", nil).
			WithDetails("node_id", nodeIDOrAddress)
	}
	return n.connectAddress(ctx, address, expectedNodeID)
}

// connectAddress dials address, expecting expectedNodeID if non-empty
// (the dialer itself enforces the match once the responder's identity
// envelope arrives).
func (n *Node) connectAddress(ctx context.Context, address, expectedNodeID string) (*transport.Session, error) {
	breakerKey := expectedNodeID
	if breakerKey == "" {
		breakerKey = address
	}

	if existing, ok := n.existingSession(expectedNodeID); ok {
		return existing, nil
	}

	var session *transport.Session
	err := n.Breaker.Call(breakerKey, func() error {
		return n.Retry.Do(ctx, func(ctx context.Context) error {
			s, dialErr := n.dialOnce(ctx, address, expectedNodeID)
			if dialErr != nil {
				n.Peers.RecordConnectionResult(breakerKey, false)
				return dialErr
			}
			session = s
			n.Peers.RecordConnectionResult(breakerKey, true)
			return nil
		})
	})
	if err != nil {
		if err == breaker.ErrCircuitOpen {
			return nil, dawnerr.New(dawnerr.CodeCircuitOpen, "circuit open for peer", err).WithDetails("node_id", breakerKey)
		}
		return nil, err
	}
	return session, nil
}

func (n *Node) dialOnce(ctx context.Context, address, expectedNodeID string) (*transport.Session, error) {
	n.trackConnState(expectedNodeID, address, ConnConnecting)
	n.trackConnState(expectedNodeID, address, ConnHandshaking)

	session, err := n.dialer.Dial(ctx, address, expectedNodeID)
	if err != nil {
		n.trackConnState(expectedNodeID, address, ConnFailed)
		return nil, fmt.Errorf("node: dial %s: %w", address, err)
	}

	n.storeSession(session, address)
	n.Peers.Add(session.PeerNodeID(), address, session.PeerNodeID())
	go n.readLoop(context.Background(), session)
	return session, nil
}

func (n *Node) existingSession(nodeID string) (*transport.Session, bool) {
	if nodeID == "" {
		return nil, false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.conns[nodeID]
	if !ok || c.state != ConnConnected {
		return nil, false
	}
	return c.session, true
}

func (n *Node) storeSession(s *transport.Session, address string) {
	n.mu.Lock()
	n.conns[s.PeerNodeID()] = &peerConn{nodeID: s.PeerNodeID(), address: address, state: ConnConnected, session: s}
	n.mu.Unlock()
}

func (n *Node) trackConnState(nodeID, address string, state ConnState) {
	if nodeID == "" {
		return
	}
	n.mu.Lock()
	c, ok := n.conns[nodeID]
	if !ok {
		c = &peerConn{nodeID: nodeID, address: address}
		n.conns[nodeID] = c
	}
	c.state = state
	n.mu.Unlock()
}

func (n *Node) dropSession(nodeID string, failed bool) {
	n.mu.Lock()
	c, ok := n.conns[nodeID]
	if ok {
		if failed {
			c.state = ConnFailed
		} else {
			c.state = ConnClosed
		}
	}
	n.mu.Unlock()
	n.Peers.RecordConnectionResult(nodeID, false)
}

// Connect implements discovery.Connector: it is called by bootstrap
// fan-out with a raw address (node_id not yet known) or by a later
// discovery source with both.
func (n *Node) Connect(ctx context.Context, address, expectedNodeID string) error {
	if expectedNodeID != "" {
		if _, ok := n.existingSession(expectedNodeID); ok {
			return nil
		}
	}
	_, err := n.connectAddress(ctx, address, expectedNodeID)
	return err
}

// ConnectedPeers implements discovery.Gossiper.
func (n *Node) ConnectedPeers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.conns))
	for id, c := range n.conns {
		if c.state == ConnConnected {
			out = append(out, id)
		}
	}
	return out
}

// ConnStateCounts returns the number of tracked peer connections in
// each ConnState, for the health seam's peer-count-by-state gauge.
func (n *Node) ConnStateCounts() map[ConnState]int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	counts := map[ConnState]int{
		ConnDisconnected: 0, ConnConnecting: 0, ConnHandshaking: 0,
		ConnConnected: 0, ConnClosed: 0, ConnFailed: 0,
	}
	for _, c := range n.conns {
		counts[c.state]++
	}
	return counts
}

// SendGossip implements discovery.Gossiper: it pushes a gossip payload
// to an already-connected peer as a notification (no reply expected).
func (n *Node) SendGossip(ctx context.Context, peerNodeID string, peers discovery.PeerSample, agents discovery.AgentDelta) error {
	session, ok := n.existingSession(peerNodeID)
	if !ok {
		return dawnerr.New(dawnerr.CodeNotFound, "peer not connected", nil).WithDetails("node_id", peerNodeID)
	}
	params := gossipParams{Peers: peers, Agents: agents}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("node: marshal gossip payload: %w", err)
	}
	req := Request{JSONRPC: "2.0", Method: "node/gossip", Params: data}
	return session.Send(req)
}

type gossipParams struct {
	Peers  discovery.PeerSample `json:"peers"`
	Agents discovery.AgentDelta `json:"agents"`
}

// handleGossip merges a received gossip payload into the local peer
// and agent registries. Unknown schema versions are dropped and
// logged, never treated as a protocol failure.
func (n *Node) handleGossip(senderNodeID string, raw []byte) {
	var params gossipParams
	if err := json.Unmarshal(raw, &params); err != nil {
		n.log.Warn("malformed gossip payload", logger.String("peer_id", senderNodeID), logger.Error(err))
		return
	}
	if params.Peers.SchemaVersion != 0 && params.Peers.SchemaVersion != 1 {
		n.log.Warn("dropping gossip peers with unknown schema version",
			logger.String("peer_id", senderNodeID), logger.Int("schema_version", params.Peers.SchemaVersion))
	} else {
		for _, rec := range params.Peers.Peers {
			if rec.NodeID == "" || rec.NodeID == n.NodeID() {
				continue
			}
			n.Peers.Add(rec.NodeID, rec.Address, rec.PublicKey)
		}
	}

	if params.Agents.SchemaVersion != 0 && params.Agents.SchemaVersion != 1 {
		n.log.Warn("dropping gossip agents with unknown schema version",
			logger.String("peer_id", senderNodeID), logger.Int("schema_version", params.Agents.SchemaVersion))
		return
	}
	n.Registry.Merge(params.Agents.Entries)
}
