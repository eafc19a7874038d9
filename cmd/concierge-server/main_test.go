package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Set("upstream-url", "https://planner.example.com/v1/stream"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", cfg.Listen)
	require.Equal(t, "concierge.db", cfg.DBPath)
	require.Equal(t, 5*time.Minute, cfg.PendingTTL)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.False(t, cfg.Debug)
}

func TestLoadConfigRequiresUpstream(t *testing.T) {
	_, err := loadConfig(newRootCmd())
	require.Error(t, err)
	require.Contains(t, err.Error(), "upstream-url")
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	content := "listen: 0.0.0.0:9090\nupstream-url: https://planner.example.com/v1/stream\npending-ttl: 2m\ndebug: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9090", cfg.Listen)
	require.Equal(t, 2*time.Minute, cfg.PendingTTL)
	require.True(t, cfg.Debug)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONCIERGE_UPSTREAM_URL", "https://planner.example.com/v1/stream")
	t.Setenv("CONCIERGE_MODEL", "gpt-4o")

	cfg, err := loadConfig(newRootCmd())
	require.NoError(t, err)
	require.Equal(t, "https://planner.example.com/v1/stream", cfg.UpstreamURL)
	require.Equal(t, "gpt-4o", cfg.Model)
}

func TestFlagOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	content := "listen: 0.0.0.0:9090\nupstream-url: https://planner.example.com/v1/stream\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Set("config", path))
	require.NoError(t, cmd.Flags().Set("listen", "127.0.0.1:7070"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7070", cfg.Listen)
}
