// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/config"
)

func testConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{FailureThreshold: 2, Timeout: 20 * time.Millisecond, SuccessThreshold: 1}
}

var errBoom = errors.New("boom")

func TestClosedPassesCallsThrough(t *testing.T) {
	tbl := New(testConfig(), nil)
	err := tbl.Call("peer-a", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, tbl.State("peer-a"))
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	tbl := New(testConfig(), nil)
	tbl.Call("peer-a", func() error { return errBoom })
	tbl.Call("peer-a", func() error { return errBoom })
	require.Equal(t, StateOpen, tbl.State("peer-a"))
}

func TestOpenFailsFastWithoutCallingFn(t *testing.T) {
	tbl := New(testConfig(), nil)
	tbl.Call("peer-a", func() error { return errBoom })
	tbl.Call("peer-a", func() error { return errBoom })

	called := false
	err := tbl.Call("peer-a", func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.False(t, called)
}

func TestTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	tbl := New(testConfig(), nil)
	tbl.Call("peer-a", func() error { return errBoom })
	tbl.Call("peer-a", func() error { return errBoom })

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, tbl.State("peer-a"))
}

func TestHalfOpenSuccessClosesBreaker(t *testing.T) {
	tbl := New(testConfig(), nil)
	tbl.Call("peer-a", func() error { return errBoom })
	tbl.Call("peer-a", func() error { return errBoom })
	time.Sleep(30 * time.Millisecond)

	err := tbl.Call("peer-a", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, tbl.State("peer-a"))
}

func TestHalfOpenFailureReopensBreaker(t *testing.T) {
	tbl := New(testConfig(), nil)
	tbl.Call("peer-a", func() error { return errBoom })
	tbl.Call("peer-a", func() error { return errBoom })
	time.Sleep(30 * time.Millisecond)

	err := tbl.Call("peer-a", func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, StateOpen, tbl.State("peer-a"))
}

func TestBreakersAreIndependentPerPeer(t *testing.T) {
	tbl := New(testConfig(), nil)
	tbl.Call("peer-a", func() error { return errBoom })
	tbl.Call("peer-a", func() error { return errBoom })
	require.Equal(t, StateOpen, tbl.State("peer-a"))
	require.Equal(t, StateClosed, tbl.State("peer-b"))
}
