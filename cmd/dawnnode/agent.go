// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dawn-project/dawnnode/crypto"
	"github.com/dawn-project/dawnnode/internal/trust"
	"github.com/dawn-project/dawnnode/internal/validator"
	"github.com/dawn-project/dawnnode/node"
	"github.com/dawn-project/dawnnode/transport"
)

var (
	agentAddress       string
	agentPeerID        string
	agentPassphraseEnv string
	agentTimeout       time.Duration
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Query agents registered on a running node",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agents a live node currently has registered",
	Long: `list dials a running node over its wire protocol and issues a
node/list_agents call. Unlike peer and trust records, the agent
registry has no on-disk form: it is replicated live by gossip, so
reading it always requires a reachable node process.`,
	RunE: runAgentList,
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentListCmd)

	agentListCmd.Flags().StringVar(&agentAddress, "address", "", "ws(s):// address of the node to query (required)")
	agentListCmd.Flags().StringVar(&agentPeerID, "peer-id", "", "expected node_id of the target, if already known")
	agentListCmd.Flags().StringVar(&agentPassphraseEnv, "passphrase-env", "", "environment variable holding this CLI's own vault passphrase")
	agentListCmd.Flags().DurationVar(&agentTimeout, "timeout", 10*time.Second, "dial and call timeout")
	_ = agentListCmd.MarkFlagRequired("address")
}

func runAgentList(cmd *cobra.Command, args []string) error {
	var passphrase string
	if agentPassphraseEnv != "" {
		passphrase = os.Getenv(agentPassphraseEnv)
	}

	identity, err := crypto.LoadOrCreateIdentity(dataRoot, passphrase)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	trustMgr, err := trust.Open(dataRoot, nil)
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}

	v := validator.New(trustMgr, nil, false)
	dialer := transport.NewDialer(identity, v)

	ctx, cancel := context.WithTimeout(context.Background(), agentTimeout)
	defer cancel()

	session, err := dialer.Dial(ctx, agentAddress, agentPeerID)
	if err != nil {
		return fmt.Errorf("dial %s: %w", agentAddress, err)
	}
	defer session.Close()

	req := node.Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "node/list_agents"}
	if err := session.Send(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	raw, err := session.Recv(ctx)
	if err != nil {
		return fmt.Errorf("receive reply: %w", err)
	}

	var resp node.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("malformed reply: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("node/list_agents failed: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}

	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
