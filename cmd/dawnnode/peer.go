// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dawn-project/dawnnode/internal/peerstore"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Manage this node's peer address book",
}

var peerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known peers",
	RunE:  runPeerList,
}

var peerAddCmd = &cobra.Command{
	Use:   "add <node_id> <address> [public_key]",
	Short: "Add or update a peer's address",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runPeerAdd,
}

var peerRemoveCmd = &cobra.Command{
	Use:   "remove <node_id>",
	Short: "Remove a peer from the address book",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerRemove,
}

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerListCmd, peerAddCmd, peerRemoveCmd)
}

func runPeerList(cmd *cobra.Command, args []string) error {
	store, err := peerstore.Open(dataRoot)
	if err != nil {
		return fmt.Errorf("open peer registry: %w", err)
	}
	defer store.Close()

	records := store.List()
	if len(records) == 0 {
		fmt.Println("no known peers")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s\t%s\t%s\n", r.NodeID, r.Address, r.PublicKey)
	}
	return nil
}

func runPeerAdd(cmd *cobra.Command, args []string) error {
	store, err := peerstore.Open(dataRoot)
	if err != nil {
		return fmt.Errorf("open peer registry: %w", err)
	}
	defer store.Close()

	nodeID, address := args[0], args[1]
	publicKey := nodeID
	if len(args) == 3 {
		publicKey = args[2]
	}

	rec := store.Add(nodeID, address, publicKey)
	fmt.Printf("added %s at %s\n", rec.NodeID, rec.Address)
	return nil
}

func runPeerRemove(cmd *cobra.Command, args []string) error {
	store, err := peerstore.Open(dataRoot)
	if err != nil {
		return fmt.Errorf("open peer registry: %w", err)
	}
	defer store.Close()

	store.Remove(args[0])
	fmt.Printf("removed %s\n", args[0])
	return nil
}
