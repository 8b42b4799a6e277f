package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.True(t, cfg.JSONLEnabled)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handoff.yaml")
	content := "port: 9090\nhost: 127.0.0.1\nsweep_interval: 500ms\njsonl_enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, 500*time.Millisecond, cfg.SweepInterval)
	assert.False(t, cfg.JSONLEnabled)
}

func TestLoadRejectsBadPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handoff.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: -1\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/handoff.yaml")
	assert.Error(t, err)
}
