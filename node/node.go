// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package node implements the P2P router: it owns every other
// singleton component (identity, audit, trust, validator, authz,
// transport, peerstore, registry, rate limiter, breaker, retry) and is
// the only thing that dispatches inbound JSON-RPC requests or opens
// outbound connections.
package node

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/discovery"
	"github.com/dawn-project/dawnnode/internal/audit"
	"github.com/dawn-project/dawnnode/internal/authz"
	"github.com/dawn-project/dawnnode/internal/breaker"
	"github.com/dawn-project/dawnnode/internal/logger"
	"github.com/dawn-project/dawnnode/internal/peerstore"
	"github.com/dawn-project/dawnnode/internal/ratelimit"
	"github.com/dawn-project/dawnnode/internal/retry"
	"github.com/dawn-project/dawnnode/internal/trust"
	"github.com/dawn-project/dawnnode/internal/validator"
	"github.com/dawn-project/dawnnode/registry"
	"github.com/dawn-project/dawnnode/transport"
)

// LifecycleState is the router's own state, distinct from any single
// peer connection's state.
type LifecycleState string

const (
	StateInitial  LifecycleState = "INITIAL"
	StateRunning  LifecycleState = "RUNNING"
	StateDraining LifecycleState = "DRAINING"
	StateStopped  LifecycleState = "STOPPED"
)

// Metrics is the health/metrics seam (C15) the router reports request
// outcomes to. It is optional: a nil Metrics simply means nothing
// observes latency and outcome counters.
type Metrics interface {
	ObserveRequest(operation string, elapsed time.Duration, ok bool)
	ObserveError(kind string)
}

// AgentHandler is the out-of-scope collaborator a local agent
// registers. It receives the decoded JSON-RPC params and returns a
// result (marshaled as-is) or an error (wrapped as HANDLER_ERROR).
type AgentHandler func(ctx context.Context, operation string, params []byte) (interface{}, error)

type localAgent struct {
	id           string
	displayName  string
	description  string
	capabilities []registry.Capability
	handler      AgentHandler
}

// Node is the P2P router.
type Node struct {
	cfg      *config.Config
	identity *crypto.NodeIdentity
	log      logger.Logger

	Audit     *audit.Log
	Trust     *trust.Manager
	Validator *validator.Validator
	Authz     *authz.Authorizer
	Peers     *peerstore.Store
	Registry  *registry.Registry
	RateLimit *ratelimit.Limiter
	Breaker   *breaker.Table
	Retry     *retry.Policy
	Metrics   Metrics

	listener *transport.Listener
	dialer   *transport.Dialer
	httpSrv  *http.Server

	mu          sync.RWMutex
	state       LifecycleState
	localAgents map[string]localAgent
	conns       map[string]*peerConn

	bootstrapDone bool
}

// New runs the boot sequence: load identity, open the trust and peer
// registries, start the audit log, and construct every owned
// component. It does not bind any listener yet — call Start for that.
func New(cfg *config.Config, log logger.Logger) (*Node, error) {
	identity, err := crypto.LoadOrCreateIdentity(cfg.DataRoot, passphraseFor(cfg))
	if err != nil {
		return nil, fmt.Errorf("node: load identity: %w", err)
	}

	auditLog, err := audit.Open(filepath.Join(cfg.DataRoot, "audit"), string(identity.NodeID()))
	if err != nil {
		return nil, fmt.Errorf("node: open audit log: %w", err)
	}

	trustMgr, err := trust.Open(cfg.DataRoot, auditLog)
	if err != nil {
		return nil, fmt.Errorf("node: open trust store: %w", err)
	}

	peers, err := peerstore.Open(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("node: open peer registry: %w", err)
	}

	v := validator.New(trustMgr, auditLog, cfg.Security.RejectUnknown)
	az := authz.New(auditLog)
	reg := registry.New(string(identity.NodeID()))
	rl := ratelimit.New(cfg.Resilience.RateLimit, auditLog)
	br := breaker.New(cfg.Resilience.CircuitBreaker, auditLog)
	rp := retry.New(cfg.Resilience.Retry)

	n := &Node{
		cfg:         cfg,
		identity:    identity,
		log:         log.WithFields(logger.String("node_id", string(identity.NodeID()))),
		Audit:       auditLog,
		Trust:       trustMgr,
		Validator:   v,
		Authz:       az,
		Peers:       peers,
		Registry:    reg,
		RateLimit:   rl,
		Breaker:     br,
		Retry:       rp,
		state:       StateInitial,
		localAgents: make(map[string]localAgent),
		conns:       make(map[string]*peerConn),
	}

	n.listener = transport.NewListener(identity, v, n.handleInboundSession)
	n.dialer = transport.NewDialer(identity, v)
	return n, nil
}

func passphraseFor(cfg *config.Config) string {
	if cfg.Node.PassphraseEnv == "" {
		return ""
	}
	return envOrEmpty(cfg.Node.PassphraseEnv)
}

// NodeID returns this node's canonical identifier.
func (n *Node) NodeID() string {
	return string(n.identity.NodeID())
}

// State reports the router's current lifecycle state.
func (n *Node) State() LifecycleState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) setState(s LifecycleState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Start binds the WebSocket listener, kicks off discovery, and
// connects to bootstrap peers. It returns once the listener is bound;
// discovery and bootstrap continue in the background until ctx is
// cancelled.
func (n *Node) Start(ctx context.Context) error {
	addr, err := listenAddrFrom(n.cfg.Node.Address)
	if err != nil {
		return fmt.Errorf("node: parse listen address: %w", err)
	}

	n.httpSrv = &http.Server{Addr: addr, Handler: n.listener.Handler()}
	errCh := make(chan error, 1)
	go func() {
		if err := n.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("node: bind listener: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	n.setState(StateRunning)
	n.log.Info("node started", logger.String("address", addr))

	go n.runBootstrap(ctx)
	go n.runAnnounce(ctx)
	go n.runGossip(ctx)

	return nil
}

func (n *Node) runBootstrap(ctx context.Context) {
	peers := make([]discovery.BootstrapPeer, 0, len(n.cfg.Node.BootstrapNodes))
	for _, addr := range n.cfg.Node.BootstrapNodes {
		peers = append(peers, discovery.BootstrapPeer{Address: addr})
	}
	if len(peers) == 0 {
		n.mu.Lock()
		n.bootstrapDone = true
		n.mu.Unlock()
		return
	}

	errs := discovery.RunBootstrap(ctx, peers, n)
	for i, err := range errs {
		if err != nil {
			n.log.Warn("bootstrap connect failed", logger.String("address", peers[i].Address), logger.Error(err))
		}
	}
	n.mu.Lock()
	n.bootstrapDone = true
	n.mu.Unlock()
}

func (n *Node) runAnnounce(ctx context.Context) {
	announcer := discovery.NewAnnouncer(n.selfAnnounceRecord, n.onAnnounceDiscovered)
	if err := announcer.Run(ctx); err != nil && ctx.Err() == nil {
		n.log.Warn("LAN announce stopped", logger.Error(err))
	}
}

func (n *Node) selfAnnounceRecord() discovery.AnnounceRecord {
	agents := n.Registry.ListAgents(true)
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		if a.NodeID == n.NodeID() {
			ids = append(ids, a.AgentID)
		}
	}
	return discovery.AnnounceRecord{NodeID: n.NodeID(), Address: n.cfg.Node.Address, Agents: ids}
}

func (n *Node) onAnnounceDiscovered(rec discovery.AnnounceRecord) {
	n.Peers.Add(rec.NodeID, rec.Address, "")
}

func (n *Node) runGossip(ctx context.Context) {
	gossip := discovery.NewGossip(n, n.Peers, n.Registry, time.Now().UnixNano())
	if err := gossip.Run(ctx); err != nil && ctx.Err() == nil {
		n.log.Warn("gossip loop stopped", logger.Error(err))
	}
}

// BootstrapComplete reports whether the startup bootstrap connection
// attempts have all settled (succeeded or failed), for the readiness probe.
func (n *Node) BootstrapComplete() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bootstrapDone
}

// ListenerBound reports whether the inbound WebSocket listener is active.
func (n *Node) ListenerBound() bool {
	return n.httpSrv != nil
}

// Drain transitions the router to DRAINING and immediately closes every
// tracked peer session and the listener's sessions. It does not wait
// for in-flight requests to complete, and request handling does not
// check the lifecycle state, so DRAINING alone refuses nothing.
func (n *Node) Drain(ctx context.Context) {
	n.setState(StateDraining)
	n.log.Info("node draining")

	n.mu.RLock()
	sessions := make([]*peerConn, 0, len(n.conns))
	for _, c := range n.conns {
		sessions = append(sessions, c)
	}
	n.mu.RUnlock()

	for _, c := range sessions {
		c.session.Close()
	}
	n.listener.Close()
}

// Stop finishes shutdown: closes the HTTP listener and every owned
// durable component. Call Drain first for a graceful shutdown.
func (n *Node) Stop() error {
	if n.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.httpSrv.Shutdown(ctx)
	}
	n.Peers.Close()
	n.setState(StateStopped)
	return n.Audit.Close()
}

// RegisterLocalAgent enters an agent into the local registry seam and
// the distributed agent registry, and triggers a gossip-delta
// broadcast on next gossip round (the registry's Delta already
// reflects the new entry immediately).
func (n *Node) RegisterLocalAgent(agentID, displayName, description string, capabilities []registry.Capability, handler AgentHandler) {
	n.mu.Lock()
	n.localAgents[agentID] = localAgent{
		id: agentID, displayName: displayName, description: description,
		capabilities: capabilities, handler: handler,
	}
	n.mu.Unlock()

	n.Registry.RegisterLocal(agentID, displayName, description, capabilities)
}

// UnregisterLocalAgent removes an agent from both the local dispatch
// table and the distributed registry (as a tombstone, so peers that
// already saw it learn it's gone).
func (n *Node) UnregisterLocalAgent(agentID string) {
	n.mu.Lock()
	delete(n.localAgents, agentID)
	n.mu.Unlock()

	n.Registry.UnregisterLocal(agentID)
}

// firstLocalAgentID returns an arbitrary local agent id, for the
// shorthand method grammar `<operation>` that targets "the first local
// agent". Iteration order over a Go map is unspecified; callers that
// need a deterministic target should use the full `<agent_id>/<operation>` form.
func (n *Node) firstLocalAgentID() (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id := range n.localAgents {
		return id, true
	}
	return "", false
}

func (n *Node) lookupLocalAgent(agentID string) (localAgent, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	a, ok := n.localAgents[agentID]
	return a, ok
}
