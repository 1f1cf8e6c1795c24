// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC 2.0 wire error codes this node can return. The codes
// themselves follow the JSON-RPC spec's reserved range plus the
// node-specific -32000/-32001 extensions.
const (
	rpcCodeParseError     = -32700
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInternalError  = -32603
	rpcCodeRateLimited    = -32000
	rpcCodeUnauthorized   = -32001
)

// Request is an inbound JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the JSON-RPC 2.0 reply, exactly one of Result or Error set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func errorResponse(id json.RawMessage, code int, message string, data map[string]interface{}) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

func resultResponse(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// target is the parsed shape of a JSON-RPC method name under the
// node's routing grammar:
//
//	[<node_id>:]<agent_id>/<operation>
//	node/<node-operation>
//	<operation>                (shorthand for the first local agent)
type target struct {
	nodeID    string // empty means "this node"
	agentID   string // empty for node/* methods
	operation string
	isNode    bool // true for the node/<node-operation> form
}

// parseMethod splits a routed method name into its target components.
// It never fails: any string is a syntactically valid method name,
// malformed routing surfaces later as "agent not found" rather than a
// parse error, matching the method grammar's permissiveness.
func parseMethod(method string) target {
	nodeID := ""
	rest := method

	if idx := strings.Index(rest, ":"); idx >= 0 {
		nodeID = rest[:idx]
		rest = rest[idx+1:]
	}

	if !strings.Contains(rest, "/") {
		// Shorthand form: bare operation name against the first local agent.
		return target{nodeID: nodeID, operation: rest}
	}

	parts := strings.SplitN(rest, "/", 2)
	agentOrNode, operation := parts[0], parts[1]
	if agentOrNode == "node" && nodeID == "" {
		return target{isNode: true, operation: operation}
	}
	return target{nodeID: nodeID, agentID: agentOrNode, operation: operation}
}

func (t target) isLocal(selfNodeID string) bool {
	return t.isNode || t.nodeID == "" || t.nodeID == selfNodeID
}

func (t target) remoteNodeID(selfNodeID string) string {
	if t.isLocal(selfNodeID) {
		return ""
	}
	return t.nodeID
}

func requireID(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return raw
}

func fmtMethodNotFound(method string) string {
	return fmt.Sprintf("no local agent or node operation handles method %q", method)
}
