package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corehub.yaml")
	content := `
storage:
  database: /tmp/test.sqlite
network:
  timeout: 5s
  concurrency: 2
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.sqlite", cfg.Storage.Database)
	assert.Equal(t, 5*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 2, cfg.Network.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Network.MaxRetries)
	assert.True(t, cfg.UI.Interactive)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  max_retries: 1\n"), 0644))

	t.Setenv("COREHUB_NETWORK_MAX_RETRIES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Network.MaxRetries)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestSaveTemplateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "corehub.yaml")

	want := Default()
	want.Network.Concurrency = 3
	require.NoError(t, SaveTemplate(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Network.Concurrency)
	assert.Equal(t, want.Network.Timeout, got.Network.Timeout)
	assert.Equal(t, want.Paths.CoresDir, got.Paths.CoresDir)
}
