package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenNoFilesExist(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoaderOptions{
		ConfigDir:   filepath.Join(dir, "missing"),
		Environment: "test",
		EnvFile:     filepath.Join(dir, ".env"),
	})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.True(t, cfg.Security.EncryptAtRest)
}

func TestLoadPrefersEnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte(`
node:
  address: "ws://0.0.0.0:6000"
`), 0644))

	cfg, err := Load(LoaderOptions{
		ConfigDir:   dir,
		Environment: "staging",
		EnvFile:     filepath.Join(dir, ".env"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://0.0.0.0:6000", cfg.Node.Address)
}

func TestLoadAppliesProcessEnvOverridesLast(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(`
node:
  address: "ws://0.0.0.0:6000"
logging:
  level: info
`), 0644))

	os.Setenv("DAWN_NODE_ADDRESS", "ws://0.0.0.0:9999")
	os.Setenv("DAWN_LOG_LEVEL", "debug")
	defer os.Unsetenv("DAWN_NODE_ADDRESS")
	defer os.Unsetenv("DAWN_LOG_LEVEL")

	cfg, err := Load(LoaderOptions{
		ConfigDir:   dir,
		Environment: "test",
		EnvFile:     filepath.Join(dir, ".env"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://0.0.0.0:9999", cfg.Node.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadBootstrapNodesFromCSVEnv(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("DAWN_BOOTSTRAP_NODES", "ws://a:1, ws://b:2 ,ws://c:3")
	defer os.Unsetenv("DAWN_BOOTSTRAP_NODES")

	cfg, err := Load(LoaderOptions{
		ConfigDir:   filepath.Join(dir, "missing"),
		Environment: "test",
		EnvFile:     filepath.Join(dir, ".env"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ws://a:1", "ws://b:2", "ws://c:3"}, cfg.Node.BootstrapNodes)
}

func TestLoadFailsValidationOnBadTrustDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(`
security:
  trust_default: NOT_A_LEVEL
`), 0644))

	_, err := Load(LoaderOptions{
		ConfigDir:   dir,
		Environment: "test",
		EnvFile:     filepath.Join(dir, ".env"),
	})
	assert.Error(t, err)
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(`
observability:
  metrics_port: -1
`), 0644))

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir, Environment: "test", EnvFile: filepath.Join(dir, ".env")})
	})
}
