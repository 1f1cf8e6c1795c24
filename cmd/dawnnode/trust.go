// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dawn-project/dawnnode/internal/trust"
)

var trustNotes string

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage this node's trust store",
}

var trustShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List trusted and untrusted peers",
	RunE:  runTrustShow,
}

var trustSetCmd = &cobra.Command{
	Use:   "set <node_id> <public_key> <level>",
	Short: "Add or update a peer's trust level (UNTRUSTED, UNKNOWN, TRUSTED, BOOTSTRAP)",
	Args:  cobra.ExactArgs(3),
	RunE:  runTrustSet,
}

var trustDemoteCmd = &cobra.Command{
	Use:   "demote <node_id>",
	Short: "Demote a peer to UNTRUSTED",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustDemote,
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustShowCmd, trustSetCmd, trustDemoteCmd)

	trustSetCmd.Flags().StringVar(&trustNotes, "notes", "", "free-form note attached to this trust record")
}

func runTrustShow(cmd *cobra.Command, args []string) error {
	mgr, err := trust.Open(dataRoot, nil)
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}

	records := mgr.List()
	if len(records) == 0 {
		fmt.Println("no trust records")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s\t%s\t%s\n", r.NodeID, r.Level, r.Notes)
	}
	return nil
}

func runTrustSet(cmd *cobra.Command, args []string) error {
	mgr, err := trust.Open(dataRoot, nil)
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}

	nodeID, publicKey, level := args[0], args[1], trust.Level(args[2])
	if err := mgr.AddTrustedPeer(nodeID, publicKey, level, trustNotes); err != nil {
		return fmt.Errorf("set trust level: %w", err)
	}
	fmt.Printf("%s set to %s\n", nodeID, level)
	return nil
}

func runTrustDemote(cmd *cobra.Command, args []string) error {
	mgr, err := trust.Open(dataRoot, nil)
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}

	if err := mgr.Demote(args[0]); err != nil {
		return fmt.Errorf("demote peer: %w", err)
	}
	fmt.Printf("%s demoted to UNTRUSTED\n", args[0])
	return nil
}
