// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

func envOrEmpty(key string) string {
	return os.Getenv(key)
}

// listenAddrFrom converts the node's configured ws:// listen address
// into the host:port net/http.Server wants.
func listenAddrFrom(wsAddr string) (string, error) {
	u, err := url.Parse(wsAddr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", wsAddr, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid address %q: no host", wsAddr)
	}
	return u.Host, nil
}

// resolveAddress resolves a dial target: if the caller
// already supplied a ws:// address use it as-is, otherwise consult the
// peer registry for a known address.
func (n *Node) resolveAddress(nodeIDOrAddress string) (address, expectedNodeID string) {
	if strings.HasPrefix(nodeIDOrAddress, "ws://") || strings.HasPrefix(nodeIDOrAddress, "wss://") {
		return nodeIDOrAddress, ""
	}
	if rec, ok := n.Peers.Get(nodeIDOrAddress); ok {
		return rec.Address, nodeIDOrAddress
	}
	return "", nodeIDOrAddress
}
