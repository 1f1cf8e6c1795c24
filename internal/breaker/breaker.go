// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package breaker implements a per-peer circuit breaker guarding
// outbound connect and send operations.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/internal/audit"
)

// State is one peer breaker's position in the CLOSED/OPEN/HALF_OPEN
// state machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrCircuitOpen is returned by Call when the breaker is OPEN and the
// timeout window has not yet elapsed.
var ErrCircuitOpen = errors.New("breaker: circuit open")

type peerBreaker struct {
	state              State
	consecutiveFailure int
	consecutiveSuccess int
	openedAt           time.Time
}

// Table holds one breaker per peer node_id.
type Table struct {
	cfg config.CircuitBreakerConfig
	log *audit.Log

	mu    sync.Mutex
	peers map[string]*peerBreaker
}

// New constructs a Table from its configuration. log may be nil.
func New(cfg config.CircuitBreakerConfig, log *audit.Log) *Table {
	return &Table{cfg: cfg, log: log, peers: make(map[string]*peerBreaker)}
}

func (t *Table) breakerFor(nodeID string) *peerBreaker {
	b, ok := t.peers[nodeID]
	if !ok {
		b = &peerBreaker{state: StateClosed}
		t.peers[nodeID] = b
	}
	return b
}

// State returns nodeID's current breaker state, transitioning an OPEN
// breaker whose timeout has elapsed to HALF_OPEN as a side effect —
// mirroring the read-time transition Call itself performs.
func (t *Table) State(nodeID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.breakerFor(nodeID)
	t.maybeHalfOpen(nodeID, b)
	return b.state
}

// Snapshot returns the count of known peer breakers in each state, for
// the health seam's breaker-state counters. Each entry's HALF_OPEN
// timeout is resolved as a read-time side effect, same as State.
func (t *Table) Snapshot() map[State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := map[State]int{StateClosed: 0, StateOpen: 0, StateHalfOpen: 0}
	for nodeID, b := range t.peers {
		t.maybeHalfOpen(nodeID, b)
		counts[b.state]++
	}
	return counts
}

func (t *Table) maybeHalfOpen(nodeID string, b *peerBreaker) {
	if b.state == StateOpen && time.Since(b.openedAt) >= t.cfg.Timeout {
		b.state = StateHalfOpen
		b.consecutiveSuccess = 0
		t.audit(nodeID, StateHalfOpen)
	}
}

// Call runs fn under nodeID's breaker. In OPEN (before the timeout
// elapses) fn does not run and Call returns ErrCircuitOpen. In
// HALF_OPEN exactly one trial call is permitted; concurrent callers
// during that window also fail fast with ErrCircuitOpen.
func (t *Table) Call(nodeID string, fn func() error) error {
	t.mu.Lock()
	b := t.breakerFor(nodeID)
	t.maybeHalfOpen(nodeID, b)

	switch b.state {
	case StateOpen:
		t.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		// Admit this caller as the single trial; further concurrent
		// callers see OPEN until the trial resolves.
		b.state = StateOpen
		b.openedAt = time.Now()
		t.mu.Unlock()
		err := fn()
		t.mu.Lock()
		defer t.mu.Unlock()
		if err == nil {
			t.recordSuccessLocked(nodeID, b)
		} else {
			t.recordFailureLocked(nodeID, b)
		}
		return err
	default: // StateClosed
		t.mu.Unlock()
		err := fn()
		t.mu.Lock()
		defer t.mu.Unlock()
		if err == nil {
			t.recordSuccessLocked(nodeID, b)
		} else {
			t.recordFailureLocked(nodeID, b)
		}
		return err
	}
}

func (t *Table) recordSuccessLocked(nodeID string, b *peerBreaker) {
	b.consecutiveFailure = 0
	switch b.state {
	case StateHalfOpen, StateOpen:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= t.cfg.SuccessThreshold {
			b.state = StateClosed
			b.consecutiveSuccess = 0
			t.audit(nodeID, StateClosed)
		} else {
			// Below success_threshold: admit the next trial call.
			b.state = StateHalfOpen
		}
	case StateClosed:
		b.consecutiveSuccess++
	}
}

func (t *Table) recordFailureLocked(nodeID string, b *peerBreaker) {
	b.consecutiveSuccess = 0
	b.consecutiveFailure++
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		t.audit(nodeID, StateOpen)
	case StateClosed:
		if b.consecutiveFailure >= t.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
			t.audit(nodeID, StateOpen)
		}
	case StateOpen:
		b.openedAt = time.Now()
	}
}

func (t *Table) audit(nodeID string, state State) {
	if t.log == nil {
		return
	}
	t.log.Append("BREAKER_STATE_CHANGED", nodeID, map[string]interface{}{"state": string(state)})
}
