// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package discovery

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dawn-project/dawnnode/internal/peerstore"
	"github.com/dawn-project/dawnnode/registry"
)

const (
	defaultGossipFanout   = 3
	defaultGossipSample   = 10
	defaultGossipInterval = 30 * time.Second
	gossipJitterFraction  = 0.10
)

// Gossip periodically pushes a sampled peer list and the full agent
// registry delta to a random fanout of already-connected peers.
type Gossip struct {
	fanout   int
	sample   int
	interval time.Duration

	gossiper Gossiper
	peers    *peerstore.Store
	agents   *registry.Registry

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGossip constructs a Gossip loop with the default fanout, sample
// size, and interval.
func NewGossip(gossiper Gossiper, peers *peerstore.Store, agents *registry.Registry, seed int64) *Gossip {
	return &Gossip{
		fanout:   defaultGossipFanout,
		sample:   defaultGossipSample,
		interval: defaultGossipInterval,
		gossiper: gossiper,
		peers:    peers,
		agents:   agents,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Run sends gossip rounds until ctx is cancelled.
func (g *Gossip) Run(ctx context.Context) error {
	for {
		delay := g.jitteredInterval()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			g.round(ctx)
		}
	}
}

func (g *Gossip) jitteredInterval() time.Duration {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	jitter := 1 + (g.rng.Float64()*2-1)*gossipJitterFraction
	return time.Duration(float64(g.interval) * jitter)
}

func (g *Gossip) round(ctx context.Context) {
	targets := g.pickFanout()
	if len(targets) == 0 {
		return
	}

	peerSample := PeerSample{SchemaVersion: gossipSchemaVersion, Peers: g.sampleePeers()}
	agentDelta := AgentDelta{SchemaVersion: gossipSchemaVersion, Entries: g.agents.Delta()}

	gr, gctx := errgroup.WithContext(ctx)
	for _, nodeID := range targets {
		nodeID := nodeID
		gr.Go(func() error {
			_ = g.gossiper.SendGossip(gctx, nodeID, peerSample, agentDelta)
			return nil
		})
	}
	_ = gr.Wait()
}

func (g *Gossip) pickFanout() []string {
	connected := g.gossiper.ConnectedPeers()
	if len(connected) <= g.fanout {
		return connected
	}

	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	shuffled := append([]string(nil), connected...)
	g.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:g.fanout]
}

func (g *Gossip) sampleePeers() []peerstore.Record {
	all := g.peers.List()
	if len(all) <= g.sample {
		return all
	}

	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	shuffled := append([]peerstore.Record(nil), all...)
	g.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:g.sample]
}
