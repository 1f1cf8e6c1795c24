// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the node's full runtime configuration.
type Config struct {
	Environment  string            `yaml:"environment" json:"environment"`
	DataRoot     string            `yaml:"data_root" json:"data_root"`
	Node         NodeConfig        `yaml:"node" json:"node"`
	Security     SecurityConfig    `yaml:"security" json:"security"`
	Resilience   ResilienceConfig  `yaml:"resilience" json:"resilience"`
	Logging      LoggingConfig     `yaml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	AuditMirror  AuditMirrorConfig `yaml:"audit_mirror" json:"audit_mirror"`
}

// NodeConfig covers identity, listen address, and discovery seeding.
type NodeConfig struct {
	Address         string   `yaml:"address" json:"address"`
	EnableEncryption bool    `yaml:"enable_encryption" json:"enable_encryption"`
	BootstrapNodes  []string `yaml:"bootstrap_nodes" json:"bootstrap_nodes"`
	PassphraseEnv   string   `yaml:"passphrase_env" json:"passphrase_env"`
}

// SecurityConfig covers trust policy, audit logging, and at-rest encryption.
type SecurityConfig struct {
	RejectUnknown     bool   `yaml:"reject_unknown" json:"reject_unknown"`
	TrustDefault      string `yaml:"trust_default" json:"trust_default"`
	AuditLogEnabled   bool   `yaml:"audit_log_enabled" json:"audit_log_enabled"`
	EncryptAtRest     bool   `yaml:"encrypt_at_rest" json:"encrypt_at_rest"`
	BootstrapCertPath string `yaml:"bootstrap_cert_path" json:"bootstrap_cert_path"`
	BootstrapCertKey  string `yaml:"bootstrap_cert_verify_key" json:"bootstrap_cert_verify_key"`
}

// RateLimitConfig configures the per-peer token bucket (C11).
type RateLimitConfig struct {
	TokensPerSecond float64 `yaml:"tokens_per_second" json:"tokens_per_second"`
	BucketSize      int     `yaml:"bucket_size" json:"bucket_size"`
}

// CircuitBreakerConfig configures the per-peer breaker (C12).
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold"`
}

// RetryConfig configures the connection retry policy (C13).
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay     time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay         time.Duration `yaml:"max_delay" json:"max_delay"`
	ExponentialBase  float64       `yaml:"exponential_base" json:"exponential_base"`
}

// ResilienceConfig groups C11-C13 configuration.
type ResilienceConfig struct {
	RateLimit      RateLimitConfig      `yaml:"rate_limit" json:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry" json:"retry"`
}

// LoggingConfig configures the structured logger (C18).
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File  string `yaml:"file" json:"file"`
}

// ObservabilityConfig configures the health/metrics seam (C15).
type ObservabilityConfig struct {
	MetricsPort       int  `yaml:"metrics_port" json:"metrics_port"`
	HealthCheckEnabled bool `yaml:"health_check_enabled" json:"health_check_enabled"`
}

// AuditMirrorConfig optionally mirrors the local append-only audit log
// to an off-box PostgreSQL table for durable, queryable retention
// (C20). The local log remains authoritative; a mirror outage never
// blocks or fails an Append.
type AuditMirrorConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	User       string `yaml:"user" json:"user"`
	Password   string `yaml:"password" json:"password"`
	Database   string `yaml:"database" json:"database"`
	SSLMode    string `yaml:"ssl_mode" json:"ssl_mode"`
	BufferSize int    `yaml:"buffer_size" json:"buffer_size"`
}

// LoadFromFile reads and parses a config file, trying YAML then JSON,
// and applies defaults for anything left unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: parse file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg back out, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = "./data"
	}

	if cfg.Node.Address == "" {
		cfg.Node.Address = "ws://0.0.0.0:7946"
	}
	if !cfg.Node.EnableEncryption {
		cfg.Node.EnableEncryption = true
	}

	if cfg.Security.TrustDefault == "" {
		cfg.Security.TrustDefault = "UNKNOWN"
	}
	// encrypt_at_rest is not defaulted here: a zero-value bool can't
	// distinguish "unset" from "explicitly false". DefaultConfig() starts
	// it at true; LoadFromFile starts from a zero Config, so a file that
	// omits the key leaves it false.

	if cfg.Resilience.RateLimit.TokensPerSecond == 0 {
		cfg.Resilience.RateLimit.TokensPerSecond = 10
	}
	if cfg.Resilience.RateLimit.BucketSize == 0 {
		cfg.Resilience.RateLimit.BucketSize = 20
	}
	if cfg.Resilience.CircuitBreaker.FailureThreshold == 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.Resilience.CircuitBreaker.Timeout == 0 {
		cfg.Resilience.CircuitBreaker.Timeout = 60 * time.Second
	}
	if cfg.Resilience.CircuitBreaker.SuccessThreshold == 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 1
	}
	if cfg.Resilience.Retry.MaxAttempts == 0 {
		cfg.Resilience.Retry.MaxAttempts = 3
	}
	if cfg.Resilience.Retry.InitialDelay == 0 {
		cfg.Resilience.Retry.InitialDelay = 1 * time.Second
	}
	if cfg.Resilience.Retry.MaxDelay == 0 {
		cfg.Resilience.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Resilience.Retry.ExponentialBase == 0 {
		cfg.Resilience.Retry.ExponentialBase = 2
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.MetricsPort == 0 {
		cfg.Observability.MetricsPort = 9090
	}

	if cfg.AuditMirror.Port == 0 {
		cfg.AuditMirror.Port = 5432
	}
	if cfg.AuditMirror.SSLMode == "" {
		cfg.AuditMirror.SSLMode = "disable"
	}
	if cfg.AuditMirror.BufferSize == 0 {
		cfg.AuditMirror.BufferSize = 256
	}
}

// DefaultConfig returns a Config with every default applied, including
// security.encrypt_at_rest = true (Open Question #1 decision), which
// setDefaults can't express since Go's zero value for bool is false.
func DefaultConfig() *Config {
	cfg := &Config{Security: SecurityConfig{EncryptAtRest: true}}
	setDefaults(cfg)
	return cfg
}
