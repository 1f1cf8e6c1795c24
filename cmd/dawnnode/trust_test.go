// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/internal/trust"
)

func TestTrustSetThenDemote(t *testing.T) {
	dataRoot = t.TempDir()
	trustNotes = "test fixture"

	require.NoError(t, runTrustSet(trustSetCmd, []string{"peer-1", "pubkey-1", "TRUSTED"}))

	mgr, err := trust.Open(dataRoot, nil)
	require.NoError(t, err)
	require.Equal(t, trust.LevelTrusted, mgr.Level("peer-1"))

	require.NoError(t, runTrustDemote(trustDemoteCmd, []string{"peer-1"}))

	mgr2, err := trust.Open(dataRoot, nil)
	require.NoError(t, err)
	require.Equal(t, trust.LevelUntrusted, mgr2.Level("peer-1"))
}

func TestIdentityShowCreatesAndPrintsNodeID(t *testing.T) {
	dataRoot = t.TempDir()
	identityPassphraseEnv = ""

	require.NoError(t, runIdentityShow(identityShowCmd, nil))
}
