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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config)
	ConfigDir string
	// Environment overrides automatic environment detection
	Environment string
	// EnvFile is a .env file to load before environment overlay; empty
	// skips dotenv loading entirely.
	EnvFile string
	// SkipEnvSubstitution disables ${VAR} substitution inside the file
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir: "config",
		EnvFile:   ".env",
	}
}

// Load loads configuration with automatic environment detection. Precedence,
// lowest to highest: file defaults < file values < .env file < process
// environment overrides.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.EnvFile != "" {
		if err := godotenv.Load(options.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = DefaultConfig()
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		for _, issue := range ValidateConfiguration(cfg) {
			if issue.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s", issue)
			}
		}
	}

	return cfg, nil
}

// loadConfigFile loads a single config file.
func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides config with process environment
// variables, which always win over file and .env values.
func applyEnvironmentOverrides(cfg *Config) {
	if addr := os.Getenv("DAWN_NODE_ADDRESS"); addr != "" {
		cfg.Node.Address = addr
	}
	if bootstrap := os.Getenv("DAWN_BOOTSTRAP_NODES"); bootstrap != "" {
		var nodes []string
		for _, addr := range strings.Split(bootstrap, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				nodes = append(nodes, addr)
			}
		}
		cfg.Node.BootstrapNodes = nodes
	}
	if passEnv := os.Getenv("DAWN_PASSPHRASE_ENV"); passEnv != "" {
		cfg.Node.PassphraseEnv = passEnv
	}

	if trust := os.Getenv("DAWN_TRUST_DEFAULT"); trust != "" {
		cfg.Security.TrustDefault = trust
	}
	if v, ok := boolEnv("DAWN_REJECT_UNKNOWN"); ok {
		cfg.Security.RejectUnknown = v
	}
	if v, ok := boolEnv("DAWN_AUDIT_LOG_ENABLED"); ok {
		cfg.Security.AuditLogEnabled = v
	}
	if v, ok := boolEnv("DAWN_ENCRYPT_AT_REST"); ok {
		cfg.Security.EncryptAtRest = v
	}

	if logLevel := os.Getenv("DAWN_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("DAWN_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if v, ok := boolEnv("DAWN_METRICS_ENABLED"); ok {
		cfg.Observability.HealthCheckEnabled = v
	}
}

func boolEnv(name string) (bool, bool) {
	v := os.Getenv(name)
	switch v {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{
		ConfigDir:   "config",
		Environment: environment,
		EnvFile:     ".env",
	})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
