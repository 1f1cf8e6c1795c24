// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package ratelimit enforces a token bucket per remote node_id.
package ratelimit

import (
	"sync"
	"time"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/internal/audit"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter holds one token bucket per node_id, refilled lazily on
// check rather than by a background ticker.
type Limiter struct {
	cfg config.RateLimitConfig
	log *audit.Log

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New constructs a Limiter from its configuration. log may be nil.
func New(cfg config.RateLimitConfig, log *audit.Log) *Limiter {
	return &Limiter{cfg: cfg, log: log, buckets: make(map[string]*bucket)}
}

// Check consumes one token for nodeID if available. allowed is false
// when the bucket is empty, in which case retryAfter is the minimum
// wait before a token becomes available. Every refusal is audited.
func (l *Limiter) Check(nodeID string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[nodeID]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BucketSize), lastRefill: now}
		l.buckets[nodeID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.cfg.TokensPerSecond
	if max := float64(l.cfg.BucketSize); b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	deficit := 1.0 - b.tokens
	wait := time.Duration(deficit/l.cfg.TokensPerSecond*1000) * time.Millisecond
	l.audit(nodeID, wait)
	return false, wait
}

func (l *Limiter) audit(nodeID string, retryAfter time.Duration) {
	if l.log == nil {
		return
	}
	l.log.Append("RATE_LIMITED", nodeID, map[string]interface{}{
		"retry_after_seconds": retryAfter.Seconds(),
	})
}

// Reset drops a node's bucket, restarting it at full capacity on its
// next check. Used by the CLI and tests.
func (l *Limiter) Reset(nodeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, nodeID)
}
