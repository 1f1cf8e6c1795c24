// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package discovery

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BootstrapPeer is one statically configured address to attempt on
// startup.
type BootstrapPeer struct {
	Address string
	NodeID  string // may be empty if not known in advance
}

// RunBootstrap attempts a connection to every configured bootstrap
// peer concurrently and returns once all attempts have settled. A
// failed attempt does not abort the others — bootstrap is
// best-effort, and an unreachable seed peer must never block startup.
func RunBootstrap(ctx context.Context, peers []BootstrapPeer, connector Connector) []error {
	errs := make([]error, len(peers))
	var g errgroup.Group

	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			errs[i] = connector.Connect(ctx, p.Address, p.NodeID)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
