package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
	assert.Equal(t, 3, cfg.Analysis.MaxConcurrent)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.True(t, filepath.IsAbs(cfg.Storage.DataDirectory))
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dir, "data", "history.db"), cfg.History.DatabasePath)
}

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `server:
  port: 9999
storage:
  data_directory: logs
history:
  enabled: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.Storage.DataDirectory)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// unset fields keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
	assert.Equal(t, 3, cfg.Analysis.MaxConcurrent)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	dataDir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("PMGRAPH_PORT", "7070")
	t.Setenv("PMGRAPH_DATA_DIR", dataDir)
	t.Setenv("PMGRAPH_LOG_LEVEL", "trace")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.Storage.DataDirectory)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestLoadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\t- not yaml"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureDirectories())

	for _, d := range []string{
		cfg.Storage.DataDirectory,
		cfg.Storage.UploadsDirectory,
		cfg.Storage.TempDirectory,
	} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestGetServerAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.Port = 8123
	assert.Equal(t, "127.0.0.1:8123", cfg.GetServerAddr())
}
