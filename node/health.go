// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import "fmt"

// Ready reports whether startup bootstrap has settled and the inbound
// listener is bound, the readiness probe's definition per spec.md.
func (n *Node) Ready() bool {
	return n.BootstrapComplete() && n.ListenerBound()
}

// Live reports whether the router's event loop is still responsive.
// It is false only once Stop has fully torn the router down.
func (n *Node) Live() bool {
	return n.State() != StateStopped
}

// PeerStateCounts returns ConnStateCounts with string keys, for a
// health seam gauge that doesn't want to depend on this package's
// ConnState type.
func (n *Node) PeerStateCounts() map[string]int {
	raw := n.ConnStateCounts()
	out := make(map[string]int, len(raw))
	for state, count := range raw {
		out[string(state)] = count
	}
	return out
}

// BreakerStateCounts returns the breaker table's per-state peer counts
// with string keys, same rationale as PeerStateCounts.
func (n *Node) BreakerStateCounts() map[string]int {
	raw := n.Breaker.Snapshot()
	out := make(map[string]int, len(raw))
	for state, count := range raw {
		out[string(state)] = count
	}
	return out
}

// CheckIdentity reports whether the node's identity was loaded (it
// always is, by the time New returns, but the self-check exists so the
// health report lists identity status uniformly with the others).
func (n *Node) CheckIdentity() (bool, string) {
	return n.identity != nil, n.NodeID()
}

// CheckTrustStore reports whether the trust store is readable.
func (n *Node) CheckTrustStore() (bool, string) {
	records := n.Trust.List()
	return true, fmt.Sprintf("%d records", len(records))
}

// CheckPeerRegistry reports whether the peer registry's last
// background persist succeeded.
func (n *Node) CheckPeerRegistry() (bool, string) {
	if err := n.Peers.LastPersistError(); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("%d peers", len(n.Peers.List()))
}

// CheckListener reports whether the inbound listener is bound.
func (n *Node) CheckListener() (bool, string) {
	if !n.ListenerBound() {
		return false, "listener not bound"
	}
	return true, ""
}

// CheckAuditLog reports whether the audit log's active segment is
// still open for writing.
func (n *Node) CheckAuditLog() (bool, string) {
	if !n.Audit.Writable() {
		return false, "audit log not writable"
	}
	return true, ""
}
