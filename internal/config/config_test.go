package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "memory.db", filepath.Base(cfg.DBPath))
	assert.Equal(t, 24*time.Hour, cfg.MaintenanceInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.MediumRetention)
	assert.Equal(t, 365*24*time.Hour, cfg.LongRetention)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.ForceDegraded)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TIERED_MEMORY_DB", "/tmp/env.db")
	t.Setenv("TIERED_MEMORY_MAINTENANCE_INTERVAL", "1h")
	t.Setenv("TIERED_MEMORY_LOG_LEVEL", "debug")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.MaintenanceInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: /data/file.db\nmedium-retention: 48h\nforce-degraded: true\n"), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/data/file.db", cfg.DBPath)
	assert.Equal(t, 48*time.Hour, cfg.MediumRetention)
	assert.True(t, cfg.ForceDegraded)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	v := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("log-level", "info", "")
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--db", "/flag.db", "--log-level", "warn"}))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "/flag.db", cfg.DBPath)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TIERED_MEMORY_LOG_LEVEL", "loud")
	_, err := Load(New(), "")
	assert.Error(t, err)

	t.Setenv("TIERED_MEMORY_LOG_LEVEL", "info")
	t.Setenv("TIERED_MEMORY_LONG_RETENTION", "0s")
	_, err = Load(New(), "")
	assert.Error(t, err)

	_, err = Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
