// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dawnnode",
	Short: "dawnnode - distributed agent-to-agent node",
	Long: `dawnnode runs and administers a node in a distributed agent network.

This tool supports:
- Running a node's P2P router, trust store, and health/metrics seam (serve)
- Inspecting and managing this node's identity (identity)
- Managing the peer address book (peer)
- Managing the trust store (trust)
- Querying agents registered on a running node (agent)`,
}

var dataRoot string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "./data", "node data directory")

	// Note: commands are registered in their respective files
	// - serve.go: serveCmd
	// - identity.go: identityCmd
	// - peer.go: peerCmd (list, add, remove)
	// - trust.go: trustCmd (show, set, demote)
	// - agent.go: agentCmd (list)
}
