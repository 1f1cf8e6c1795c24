// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dawn-project/dawnnode/crypto"
)

var identityPassphraseEnv string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage this node's Ed25519 identity",
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the node's identity, creating one if none exists yet",
	RunE:  runIdentityShow,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityShowCmd)

	identityShowCmd.Flags().StringVar(&identityPassphraseEnv, "passphrase-env", "",
		"environment variable holding the vault passphrase, if the key is encrypted at rest")
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	var passphrase string
	if identityPassphraseEnv != "" {
		passphrase = os.Getenv(identityPassphraseEnv)
	}

	id, err := crypto.LoadOrCreateIdentity(dataRoot, passphrase)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	fmt.Printf("node_id:  %s\n", id.NodeID())
	fmt.Printf("base58:   %s\n", id.NodeID().Base58())
	return nil
}
