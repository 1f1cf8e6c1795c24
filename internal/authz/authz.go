// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package authz grants and checks per-node permissions for routed
// JSON-RPC methods.
package authz

import (
	"sync"

	"github.com/dawn-project/dawnnode/internal/audit"
)

// Permission is a coarse capability a node_id can be granted.
type Permission string

const (
	PermissionNodeAdmin    Permission = "NODE_ADMIN"
	PermissionAgentExecute Permission = "AGENT_EXECUTE"
	PermissionAgentQuery   Permission = "AGENT_QUERY"
	PermissionPeerManage   Permission = "PEER_MANAGE"
)

// Authorizer owns the node_id -> granted-permissions map.
type Authorizer struct {
	log *audit.Log

	mu          sync.RWMutex
	permissions map[string]map[Permission]struct{}
}

// New constructs an empty Authorizer.
func New(log *audit.Log) *Authorizer {
	return &Authorizer{log: log, permissions: make(map[string]map[Permission]struct{})}
}

// Grant adds perm to nodeID's permission set.
func (a *Authorizer) Grant(nodeID string, perm Permission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.permissions[nodeID]
	if !ok {
		set = make(map[Permission]struct{})
		a.permissions[nodeID] = set
	}
	set[perm] = struct{}{}
}

// Revoke removes perm from nodeID's permission set.
func (a *Authorizer) Revoke(nodeID string, perm Permission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if set, ok := a.permissions[nodeID]; ok {
		delete(set, perm)
	}
}

// Check reports whether nodeID holds required, emitting an
// ACCESS_DENIED audit event on refusal. Callers must not invoke the
// target handler when Check returns false.
func (a *Authorizer) Check(nodeID string, required Permission) bool {
	a.mu.RLock()
	set, ok := a.permissions[nodeID]
	allowed := ok && func() bool { _, has := set[required]; return has }()
	a.mu.RUnlock()

	if !allowed && a.log != nil {
		a.log.Append("ACCESS_DENIED", nodeID, map[string]interface{}{"required": string(required)})
	}
	return allowed
}

// Permissions returns a snapshot of nodeID's granted permissions, for
// CLI inspection.
func (a *Authorizer) Permissions(nodeID string) []Permission {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set, ok := a.permissions[nodeID]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}
