// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/health"
	"github.com/dawn-project/dawnnode/internal/logger"
	"github.com/dawn-project/dawnnode/node"
	"github.com/dawn-project/dawnnode/pkg/storage/postgres"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node's P2P router and health/metrics seam",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to a YAML or JSON config file (defaults applied if omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}
	cfg.DataRoot = dataRoot

	log := logger.NewDefaultLogger()
	log.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	n, err := node.New(cfg, log)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	if cfg.AuditMirror.Enabled {
		mirrorCtx, mirrorCancel := context.WithTimeout(context.Background(), 10*time.Second)
		sink, err := postgres.NewStore(mirrorCtx, &postgres.Config{
			Host:     cfg.AuditMirror.Host,
			Port:     cfg.AuditMirror.Port,
			User:     cfg.AuditMirror.User,
			Password: cfg.AuditMirror.Password,
			Database: cfg.AuditMirror.Database,
			SSLMode:  cfg.AuditMirror.SSLMode,
		})
		mirrorCancel()
		if err != nil {
			log.Warn("audit mirror unavailable, continuing with local log only", logger.Error(err))
		} else {
			n.Audit.WithMirror(sink, cfg.AuditMirror.BufferSize)
		}
	}

	collector := health.NewCollector()
	n.Metrics = collector

	checker := health.NewChecker([]health.ComponentCheck{
		{Name: "identity", Check: n.CheckIdentity},
		{Name: "trust_store", Check: n.CheckTrustStore},
		{Name: "peer_registry", Check: n.CheckPeerRegistry},
		{Name: "listener", Check: n.CheckListener},
		{Name: "audit_log", Check: n.CheckAuditLog},
		health.SystemCheck(),
	})

	var healthSrv *health.Server
	if cfg.Observability.HealthCheckEnabled {
		probes := health.Probes{
			Live:               n.Live,
			Ready:              n.Ready,
			PeerStateCounts:    n.PeerStateCounts,
			BreakerStateCounts: n.BreakerStateCounts,
		}
		healthSrv = health.NewServer(checker, collector, probes, log, cfg.Observability.MetricsPort)
		if err := healthSrv.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	log.Info("dawnnode serving", logger.String("node_id", n.NodeID()), logger.String("address", cfg.Node.Address))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	n.Drain(drainCtx)
	cancel()

	if err := n.Stop(); err != nil {
		log.Error("node stop failed", logger.Error(err))
	}
	if healthSrv != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := healthSrv.Stop(stopCtx); err != nil {
			log.Error("health server stop failed", logger.Error(err))
		}
	}
	return nil
}

func loadServeConfig() (*config.Config, error) {
	if serveConfigPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFromFile(serveConfigPath)
}
