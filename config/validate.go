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

import "fmt"

// ValidationIssue describes a single problem found in a Config.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string // "error" or "warning"
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Field, i.Message, i.Level)
}

var validTrustLevels = map[string]bool{
	"UNTRUSTED": true,
	"UNKNOWN":   true,
	"VERIFIED":  true,
	"TRUSTED":   true,
	"BOOTSTRAP": true,
}

// ValidateConfiguration checks cfg for invalid or inconsistent values.
// Only "error"-level issues prevent Load from returning a config;
// "warning"-level issues are informational.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Node.Address == "" {
		issues = append(issues, ValidationIssue{"node.address", "must not be empty", "error"})
	}

	if !validTrustLevels[cfg.Security.TrustDefault] {
		issues = append(issues, ValidationIssue{"security.trust_default", "must be one of UNTRUSTED, UNKNOWN, VERIFIED, TRUSTED, BOOTSTRAP", "error"})
	}

	if cfg.Resilience.RateLimit.TokensPerSecond <= 0 {
		issues = append(issues, ValidationIssue{"resilience.rate_limit.tokens_per_second", "must be positive", "error"})
	}
	if cfg.Resilience.RateLimit.BucketSize <= 0 {
		issues = append(issues, ValidationIssue{"resilience.rate_limit.bucket_size", "must be positive", "error"})
	}

	if cfg.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		issues = append(issues, ValidationIssue{"resilience.circuit_breaker.failure_threshold", "must be positive", "error"})
	}

	if cfg.Resilience.Retry.MaxAttempts <= 0 {
		issues = append(issues, ValidationIssue{"resilience.retry.max_attempts", "must be positive", "error"})
	}
	if cfg.Resilience.Retry.ExponentialBase <= 1 {
		issues = append(issues, ValidationIssue{"resilience.retry.exponential_base", "must be greater than 1", "warning"})
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		issues = append(issues, ValidationIssue{"logging.level", "unrecognized level, defaulting behavior may differ", "warning"})
	}

	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		issues = append(issues, ValidationIssue{"observability.metrics_port", "must be a valid TCP port", "error"})
	}

	return issues
}
