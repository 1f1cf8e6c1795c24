// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package health implements the node's health and metrics seam: a
// Prometheus collector the router reports request outcomes to, a
// component-self-check aggregator, and the HTTP server exposing
// /live, /ready, /health, and /metrics to an external observer.
package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dawnnode"

// Collector implements node.Metrics and tracks every counter and
// histogram the health seam promises: request rates and latencies by
// outcome, error counts by kind, peer counts by connection state, and
// breaker state counts. Each Collector owns a private
// *prometheus.Registry rather than registering on the global default,
// so multiple Collectors (one per node under test, or per node in a
// multi-node process) never collide on metric name registration.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	peersByState    *prometheus.GaugeVec
	breakersByState *prometheus.GaugeVec
	uptime          prometheus.GaugeFunc
	startedAt       time.Time
}

// NewCollector constructs a Collector and registers its metrics on a
// fresh private registry, available via Registry().
func NewCollector() *Collector {
	startedAt := time.Now()
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry:  registry,
		startedAt: startedAt,
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of JSON-RPC requests routed, by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "JSON-RPC request routing duration in seconds, by operation.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "errors_total",
				Help:      "Total number of JSON-RPC errors returned, by error kind.",
			},
			[]string{"kind"},
		),
		peersByState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "peers",
				Name:      "connections",
				Help:      "Number of tracked peer connections, by connection state.",
			},
			[]string{"state"},
		),
		breakersByState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "peers",
				Help:      "Number of peer circuit breakers, by breaker state.",
			},
			[]string{"state"},
		),
	}
	c.uptime = promauto.With(registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since this node process started.",
		},
		func() float64 { return time.Since(startedAt).Seconds() },
	)
	return c
}

// Registry returns this Collector's private Prometheus registry, for
// mounting a /metrics handler over it.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest implements node.Metrics.
func (c *Collector) ObserveRequest(operation string, elapsed time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	c.requestsTotal.WithLabelValues(operation, outcome).Inc()
	c.requestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveError implements node.Metrics.
func (c *Collector) ObserveError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// SetPeerStateCounts replaces the peer-connection gauge's values for
// every state in counts, called periodically by Server's sampler.
func (c *Collector) SetPeerStateCounts(counts map[string]int) {
	for state, n := range counts {
		c.peersByState.WithLabelValues(state).Set(float64(n))
	}
}

// SetBreakerStateCounts replaces the breaker gauge's values for every
// state in counts, called periodically by Server's sampler.
func (c *Collector) SetBreakerStateCounts(counts map[string]int) {
	for state, n := range counts {
		c.breakersByState.WithLabelValues(state).Set(float64(n))
	}
}

// Uptime reports how long this collector (and, by construction, the
// node it is attached to) has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startedAt)
}
