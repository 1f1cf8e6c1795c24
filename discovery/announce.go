// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// defaultMulticastAddr and defaultAnnounceInterval match a
// conventional mDNS-style LAN discovery cadence: low rate, one
// UDP datagram per tick, no service-discovery handshake.
const (
	defaultMulticastAddr     = "239.255.76.46:7947"
	defaultAnnounceInterval  = 60 * time.Second
	maxAnnouncePacketBytes   = 4096
)

// AnnounceRecord is the {node_id, address, agents} datagram broadcast
// on the local network.
type AnnounceRecord struct {
	NodeID  string   `json:"node_id"`
	Address string   `json:"address"`
	Agents  []string `json:"agents"`
}

// Announcer periodically multicasts this node's AnnounceRecord on the
// LAN and listens for records from other nodes.
type Announcer struct {
	multicastAddr string
	interval      time.Duration

	selfRecord func() AnnounceRecord
	onDiscover func(AnnounceRecord)
}

// NewAnnouncer constructs an Announcer. selfRecord is called fresh on
// every announce tick so it reflects the current local agent set;
// onDiscover is invoked for every record received from a peer (it
// never sees our own broadcast — see listenLoop).
func NewAnnouncer(selfRecord func() AnnounceRecord, onDiscover func(AnnounceRecord)) *Announcer {
	return &Announcer{
		multicastAddr: defaultMulticastAddr,
		interval:      defaultAnnounceInterval,
		selfRecord:    selfRecord,
		onDiscover:    onDiscover,
	}
}

// Run broadcasts and listens until ctx is cancelled. A failure to bind
// the multicast socket (common in sandboxed or IPv6-only
// environments) is returned immediately rather than retried — LAN
// announce is the least essential of the three discovery sources.
func (a *Announcer) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", a.multicastAddr)
	if err != nil {
		return fmt.Errorf("discovery: resolve multicast address: %w", err)
	}

	listenConn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("discovery: join multicast group: %w", err)
	}
	defer listenConn.Close()

	sendConn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("discovery: open send socket: %w", err)
	}
	defer sendConn.Close()

	selfNodeID := a.selfRecord().NodeID

	go a.listenLoop(ctx, listenConn, selfNodeID)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.announceOnce(sendConn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.announceOnce(sendConn)
		}
	}
}

func (a *Announcer) announceOnce(conn *net.UDPConn) {
	data, err := json.Marshal(a.selfRecord())
	if err != nil {
		return
	}
	conn.Write(data)
}

func (a *Announcer) listenLoop(ctx context.Context, conn *net.UDPConn, selfNodeID string) {
	buf := make([]byte, maxAnnouncePacketBytes)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}

		var rec AnnounceRecord
		if err := json.Unmarshal(buf[:n], &rec); err != nil {
			continue
		}
		if rec.NodeID == "" || rec.NodeID == selfNodeID {
			continue
		}
		a.onDiscover(rec)
	}
}
