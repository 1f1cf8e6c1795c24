// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dawn-project/dawnnode/internal/authz"
	"github.com/dawn-project/dawnnode/transport"
)

// handleInboundSession is the transport.SessionHandler installed on
// the listener: it owns a freshly accepted, already-authenticated
// session until it closes.
func (n *Node) handleInboundSession(ctx context.Context, s *transport.Session) {
	n.storeSession(s, "")
	n.readLoop(ctx, s)
}

// readLoop pulls decrypted frames off a session until it closes,
// dispatching each one through the inbound pipeline and replying
// in-place. One session serves one peer; a slow handler on one session
// never blocks another.
func (n *Node) readLoop(ctx context.Context, s *transport.Session) {
	defer n.dropSession(s.PeerNodeID(), false)

	for {
		raw, err := s.Recv(ctx)
		if err != nil {
			return
		}
		n.dispatchFrame(ctx, s, raw)
	}
}

func (n *Node) dispatchFrame(ctx context.Context, s *transport.Session, raw json.RawMessage) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		n.recordError(errorKindForCode(rpcCodeParseError))
		s.Send(errorResponse(nil, rpcCodeParseError, "malformed JSON-RPC request", nil))
		return
	}

	if req.Method == "node/gossip" {
		n.handleGossip(s.PeerNodeID(), req.Params)
		return
	}

	resp := n.routeRequest(ctx, s.PeerNodeID(), req)
	if req.ID != nil {
		s.Send(resp)
	}
}

func errorKindForCode(code int) string {
	switch code {
	case rpcCodeParseError:
		return "parse_error"
	case rpcCodeInvalidRequest:
		return "invalid_request"
	case rpcCodeMethodNotFound:
		return "method_not_found"
	case rpcCodeRateLimited:
		return "rate_limited"
	case rpcCodeUnauthorized:
		return "unauthorized"
	default:
		return "internal_error"
	}
}

// routeRequest runs the full inbound pipeline: rate limit, authz,
// dispatch (local or proxied), per spec.md's data flow.
func (n *Node) routeRequest(ctx context.Context, senderNodeID string, req Request) (resp Response) {
	start := time.Now()
	id := requireID(req.ID)

	defer func() {
		if resp.Error != nil {
			n.recordError(errorKindForCode(resp.Error.Code))
		}
	}()

	if req.JSONRPC != "2.0" || req.Method == "" {
		resp = errorResponse(id, rpcCodeInvalidRequest, "invalid JSON-RPC request", nil)
		return resp
	}

	if senderNodeID != n.NodeID() {
		if allowed, retryAfter := n.RateLimit.Check(senderNodeID); !allowed {
			resp = errorResponse(id, rpcCodeRateLimited, "rate limit exceeded",
				map[string]interface{}{"retry_after": retryAfter.Seconds()})
			return resp
		}
	}

	t := parseMethod(req.Method)
	required := permissionFor(t)
	if !n.Authz.Check(senderNodeID, required) {
		resp = errorResponse(id, rpcCodeUnauthorized, "not authorized for this method", nil)
		return resp
	}

	if t.isLocal(n.NodeID()) {
		resp = n.dispatchLocal(ctx, senderNodeID, id, t, req.Params)
	} else {
		resp = n.proxyRemote(ctx, t, req)
	}

	n.recordLatency(t, time.Since(start), resp.Error == nil)
	return resp
}

func (n *Node) dispatchLocal(ctx context.Context, senderNodeID string, id json.RawMessage, t target, params json.RawMessage) Response {
	if t.isNode {
		result, err := n.dispatchBuiltin(ctx, senderNodeID, t.operation, params)
		if err != nil {
			return errorResponse(id, rpcCodeMethodNotFound, fmtMethodNotFound("node/"+t.operation), nil)
		}
		return resultResponse(id, result)
	}

	agentID := t.agentID
	if agentID == "" {
		first, ok := n.firstLocalAgentID()
		if !ok {
			return errorResponse(id, rpcCodeMethodNotFound, fmtMethodNotFound(t.operation), nil)
		}
		agentID = first
	}

	agent, ok := n.lookupLocalAgent(agentID)
	if !ok {
		return errorResponse(id, rpcCodeMethodNotFound, fmtMethodNotFound(agentID+"/"+t.operation), nil)
	}

	result, err := agent.handler(ctx, t.operation, params)
	if err != nil {
		n.Audit.Append("HANDLER_ERROR", senderNodeID, map[string]interface{}{
			"agent_id": agentID, "operation": t.operation, "error": err.Error(),
		})
		return errorResponse(id, rpcCodeInternalError, err.Error(), nil)
	}
	return resultResponse(id, result)
}

// proxyRemote forwards the original request to the target node,
// opening or reusing an outbound session, and relays the reply back
// unchanged aside from transport framing.
func (n *Node) proxyRemote(ctx context.Context, t target, req Request) Response {
	id := requireID(req.ID)

	session, err := n.connectOutbound(ctx, t.nodeID)
	if err != nil {
		return errorResponse(id, rpcCodeInternalError, "failed to reach target node: "+err.Error(), nil)
	}

	forwarded := Request{JSONRPC: "2.0", ID: req.ID, Method: t.agentID + "/" + t.operation, Params: req.Params}
	if err := session.Send(forwarded); err != nil {
		return errorResponse(id, rpcCodeInternalError, "failed to forward request: "+err.Error(), nil)
	}

	raw, err := session.Recv(ctx)
	if err != nil {
		return errorResponse(id, rpcCodeInternalError, "no reply from target node: "+err.Error(), nil)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errorResponse(id, rpcCodeInternalError, "malformed reply from target node", nil)
	}
	resp.ID = req.ID
	return resp
}

func (n *Node) recordLatency(t target, elapsed time.Duration, ok bool) {
	if n.Metrics == nil {
		return
	}
	n.Metrics.ObserveRequest(t.operation, elapsed, ok)
}

func (n *Node) recordError(kind string) {
	if n.Metrics == nil {
		return
	}
	n.Metrics.ObserveError(kind)
}

// permissionFor maps a routed method's target class to the
// permission required to invoke it: node/* operations require
// NODE_ADMIN, everything targeting an agent requires AGENT_EXECUTE.
func permissionFor(t target) authz.Permission {
	if t.isNode {
		return authz.PermissionNodeAdmin
	}
	return authz.PermissionAgentExecute
}
