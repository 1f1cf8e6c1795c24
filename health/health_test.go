// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/internal/logger"
)

func TestCheckerAggregatesHealthyWhenAllComponentsOK(t *testing.T) {
	checker := NewChecker([]ComponentCheck{
		{Name: "a", Check: func() (bool, string) { return true, "" }},
		{Name: "b", Check: func() (bool, string) { return true, "" }},
	})
	report := checker.CheckAll()
	require.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Components, 2)
}

func TestCheckerAggregatesUnhealthyWhenOneComponentFails(t *testing.T) {
	checker := NewChecker([]ComponentCheck{
		{Name: "identity", Check: func() (bool, string) { return true, "" }},
		{Name: "audit_log", Check: func() (bool, string) { return false, "file closed" }},
	})
	report := checker.CheckAll()
	require.Equal(t, StatusUnhealthy, report.Status)

	var failed ComponentResult
	for _, c := range report.Components {
		if c.Name == "audit_log" {
			failed = c
		}
	}
	require.False(t, failed.OK)
	require.Equal(t, "file closed", failed.Detail)
}

func TestCollectorObserveRequestIncrementsByOutcome(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("greet", 5*time.Millisecond, true)
	c.ObserveRequest("greet", 9*time.Millisecond, false)

	metricFamilies, err := c.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "dawnnode_requests_total" {
			found = true
			require.Len(t, mf.GetMetric(), 2)
		}
	}
	require.True(t, found, "expected dawnnode_requests_total to be registered")
}

func TestCollectorSetPeerStateCountsUpdatesGauge(t *testing.T) {
	c := NewCollector()
	c.SetPeerStateCounts(map[string]int{"CONNECTED": 3, "FAILED": 1})

	metricFamilies, err := c.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range metricFamilies {
		if mf.GetName() == "dawnnode_peers_connections" {
			for _, m := range mf.GetMetric() {
				total += m.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(4), total)
}

func newTestServer(t *testing.T, live, ready bool) *Server {
	t.Helper()
	checker := NewChecker([]ComponentCheck{
		{Name: "ok", Check: func() (bool, string) { return true, "" }},
	})
	collector := NewCollector()
	probes := Probes{
		Live:  func() bool { return live },
		Ready: func() bool { return ready },
	}
	return NewServer(checker, collector, probes, logger.NewDefaultLogger(), 0)
}

func TestHandleLiveReturnsOKWhenLive(t *testing.T) {
	s := newTestServer(t, true, false)
	rec := httptest.NewRecorder()
	s.handleLive(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["live"])
}

func TestHandleReadyReturnsServiceUnavailableWhenNotReady(t *testing.T) {
	s := newTestServer(t, true, false)
	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealthReturnsReportBody(t *testing.T) {
	s := newTestServer(t, true, true)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, StatusHealthy, report.Status)
}

func TestSystemCheckAlwaysReportsOK(t *testing.T) {
	ok, _ := SystemCheck().Check()
	require.True(t, ok)
}
