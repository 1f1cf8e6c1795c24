// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package registry implements the node's distributed agent registry:
// a last-writer-wins CRDT keyed by node_id:agent_id, replicated by
// gossip. It guarantees only eventual consistency and never blocks on
// consensus.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTombstoneTTL is how long a tombstoned entry is retained
// before it becomes eligible for garbage collection.
const DefaultTombstoneTTL = 24 * time.Hour

// Capability describes one tool, resource, or prompt an agent
// declares it supports.
type Capability struct {
	Kind string `json:"kind"` // "tool", "resource", or "prompt"
	Name string `json:"name"`
}

// Entry is one agent registry record. Timestamp is a per-owning-node
// monotonic counter, not a wall clock; ties are broken by NodeID.
type Entry struct {
	AgentID      string       `json:"agent_id"`
	NodeID       string       `json:"node_id"`
	DisplayName  string       `json:"display_name"`
	Description  string       `json:"description,omitempty"`
	Capabilities []Capability `json:"capabilities"`
	Timestamp    uint64       `json:"timestamp"`
	HealthScore  float64      `json:"health_score"`
	Available    bool         `json:"available"`
	Tombstone    bool         `json:"tombstone"`
	TombstonedAt time.Time    `json:"tombstoned_at,omitempty"`
}

// compositeKey returns the entry's node_id:agent_id key.
func compositeKey(nodeID, agentID string) string {
	return fmt.Sprintf("%s:%s", nodeID, agentID)
}

// wins reports whether candidate should replace incumbent under the
// CRDT's (timestamp, node_id) total order — greater timestamp wins,
// ties broken by node_id lexicographic order.
func wins(candidate, incumbent Entry) bool {
	if candidate.Timestamp != incumbent.Timestamp {
		return candidate.Timestamp > incumbent.Timestamp
	}
	return candidate.NodeID > incumbent.NodeID
}

// Registry is the local replica of the agent registry CRDT.
type Registry struct {
	localNodeID string
	tombstoneTTL time.Duration

	mu      sync.RWMutex
	entries map[string]Entry
	counter uint64
}

// New constructs a Registry owned by localNodeID.
func New(localNodeID string) *Registry {
	return &Registry{
		localNodeID:  localNodeID,
		tombstoneTTL: DefaultTombstoneTTL,
		entries:      make(map[string]Entry),
	}
}

// RegisterLocal creates or updates the local entry for agentID,
// bumping this node's Lamport counter.
func (r *Registry) RegisterLocal(agentID, displayName, description string, capabilities []Capability) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	entry := Entry{
		AgentID:      agentID,
		NodeID:       r.localNodeID,
		DisplayName:  displayName,
		Description:  description,
		Capabilities: capabilities,
		Timestamp:    r.counter,
		HealthScore:  1.0,
		Available:    true,
	}
	r.entries[compositeKey(r.localNodeID, agentID)] = entry
	return entry
}

// UnregisterLocal writes a tombstone for agentID with a fresh
// timestamp, so the deletion propagates through gossip like any other
// write.
func (r *Registry) UnregisterLocal(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := compositeKey(r.localNodeID, agentID)
	r.counter++
	existing, ok := r.entries[key]
	if !ok {
		existing = Entry{AgentID: agentID, NodeID: r.localNodeID}
	}
	existing.Timestamp = r.counter
	existing.Tombstone = true
	existing.Available = false
	existing.TombstonedAt = time.Now().UTC()
	r.entries[key] = existing
}

// Merge applies every entry in remote against the local state: the
// entry with the greater (timestamp, node_id) wins per key. Entries
// that lose are discarded; the caller's remote slice is never
// mutated.
func (r *Registry) Merge(remote []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, candidate := range remote {
		key := compositeKey(candidate.NodeID, candidate.AgentID)
		incumbent, ok := r.entries[key]
		if !ok || wins(candidate, incumbent) {
			r.entries[key] = candidate
		}
	}
}

// Get returns the entry for compositeKey, if any — including
// tombstoned entries, so callers can distinguish "never existed" from
// "removed."
func (r *Registry) Get(compositeKey string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[compositeKey]
	return e, ok
}

// ListAgents returns every non-tombstoned entry, optionally filtered
// to those with Available set.
func (r *Registry) ListAgents(availableOnly bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Tombstone {
			continue
		}
		if availableOnly && !e.Available {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return compositeKey(out[i].NodeID, out[i].AgentID) < compositeKey(out[j].NodeID, out[j].AgentID) })
	return out
}

// FindByCapability returns every non-tombstoned entry declaring a
// capability of kind, optionally narrowed to a specific name.
func (r *Registry) FindByCapability(kind, name string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, e := range r.entries {
		if e.Tombstone {
			continue
		}
		for _, c := range e.Capabilities {
			if c.Kind != kind {
				continue
			}
			if name != "" && c.Name != name {
				continue
			}
			out = append(out, e)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return compositeKey(out[i].NodeID, out[i].AgentID) < compositeKey(out[j].NodeID, out[j].AgentID) })
	return out
}

// Delta returns every entry the caller should gossip to a peer: a
// plain snapshot of the full entry map, letting the receiving side's
// Merge sort out what it actually needs. Tombstones are included so
// deletions propagate.
func (r *Registry) Delta() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// GCTombstones removes tombstoned entries older than the registry's
// tombstone TTL. Call periodically from the owning node's maintenance
// loop.
func (r *Registry) GCTombstones() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	now := time.Now().UTC()
	for key, e := range r.entries {
		if e.Tombstone && now.Sub(e.TombstonedAt) > r.tombstoneTTL {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}
