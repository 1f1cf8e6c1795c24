// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dawn-project/dawnnode/internal/logger"
)

// Probes are the closures Server consults to answer /live and /ready
// without importing the router package directly: the composing layer
// (cmd/dawnnode) supplies them bound to a live *node.Node.
type Probes struct {
	// Live reports whether the event loop is responsive. Almost always
	// true once the process is up; false only while shutting down.
	Live func() bool
	// Ready reports whether bootstrap has completed and a listener is bound.
	Ready func() bool
	// PeerStateCounts and BreakerStateCounts feed the periodic sampler
	// that refreshes the corresponding Collector gauges.
	PeerStateCounts    func() map[string]int
	BreakerStateCounts func() map[string]int
}

// Server is the HTTP server exposing the health and metrics seam.
type Server struct {
	checker   *Checker
	collector *Collector
	probes    Probes
	log       logger.Logger
	port      int

	httpSrv    *http.Server
	sampleStop chan struct{}
}

// NewServer constructs a Server. collector may be nil if the caller
// only wants health probes without Prometheus exposition.
func NewServer(checker *Checker, collector *Collector, probes Probes, log logger.Logger, port int) *Server {
	return &Server{checker: checker, collector: collector, probes: probes, log: log, port: port}
}

// Start binds the HTTP listener and, if a Collector was supplied,
// starts the background gauge sampler. It returns once the listener
// goroutine has been launched; bind failures surface asynchronously
// through the logger, matching the rest of this seam's best-effort
// posture (a metrics outage must never take the node down with it).
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/health", s.handleHealth)
	if s.collector != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("health server stopped", logger.Error(err))
		}
	}()

	if s.collector != nil {
		s.sampleStop = make(chan struct{})
		go s.runSampler()
	}

	s.log.Info("health server started", logger.Int("port", s.port))
	return nil
}

// Stop shuts down the HTTP listener and the gauge sampler.
func (s *Server) Stop(ctx context.Context) error {
	if s.sampleStop != nil {
		close(s.sampleStop)
	}
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

const sampleInterval = 10 * time.Second

func (s *Server) runSampler() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sampleStop:
			return
		case <-ticker.C:
			if s.probes.PeerStateCounts != nil {
				s.collector.SetPeerStateCounts(s.probes.PeerStateCounts())
			}
			if s.probes.BreakerStateCounts != nil {
				s.collector.SetBreakerStateCounts(s.probes.BreakerStateCounts())
			}
		}
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	live := s.probes.Live == nil || s.probes.Live()
	status := http.StatusOK
	if !live {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"live":      live,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.probes.Ready != nil && s.probes.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.CheckAll()
	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
