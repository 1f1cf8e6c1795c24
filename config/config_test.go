package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.Node.EnableEncryption)
	assert.True(t, cfg.Security.EncryptAtRest)
	assert.Equal(t, "UNKNOWN", cfg.Security.TrustDefault)
	assert.Equal(t, 5, cfg.Resilience.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.CircuitBreaker.Timeout)
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Observability.MetricsPort)
	assert.False(t, cfg.AuditMirror.Enabled)
	assert.Equal(t, 5432, cfg.AuditMirror.Port)
	assert.Equal(t, "disable", cfg.AuditMirror.SSLMode)
	assert.Equal(t, 256, cfg.AuditMirror.BufferSize)
}

func TestSetDefaultsDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Logging:     LoggingConfig{Level: "debug"},
	}
	setDefaults(cfg)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched fields still get filled in
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")

	yamlContent := []byte(`
environment: staging
node:
  address: "ws://0.0.0.0:8000"
security:
  trust_default: VERIFIED
`)
	require.NoError(t, os.WriteFile(path, yamlContent, 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "ws://0.0.0.0:8000", cfg.Node.Address)
	assert.Equal(t, "VERIFIED", cfg.Security.TrustDefault)
	// defaults still applied for untouched fields
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")

	jsonContent := []byte(`{"environment":"staging","node":{"address":"ws://0.0.0.0:9000"}}`)
	require.NoError(t, os.WriteFile(path, jsonContent, 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "ws://0.0.0.0:9000", cfg.Node.Address)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")

	cfg := DefaultConfig()
	cfg.Node.Address = "ws://127.0.0.1:7777"

	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Node.Address, loaded.Node.Address)
}
