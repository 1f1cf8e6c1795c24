// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package storage

import "time"

// AuditRecord is the off-box mirror representation of one audit log
// entry. It mirrors internal/audit.Event field-for-field; the storage
// package does not import internal/audit to avoid a dependency cycle,
// so the audit package does the translation.
type AuditRecord struct {
	Seq       int64                  `json:"seq"`
	Kind      string                 `json:"kind"`
	NodeID    string                 `json:"node_id"`
	PeerID    string                 `json:"peer_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
