package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvPort, EnvDatabaseURL, EnvStore, EnvStateSQLite, EnvConfigFile,
		EnvRequiredStreak, EnvNotifyChannel, EnvWebhookURL, EnvWebhookSecret,
		EnvNotifyBaseDelay, EnvNotifyMaxDelay, EnvNotifyMaxAttempts,
		EnvNotifyWorkers, EnvNotifyQueue, EnvIngestRate, EnvIngestBurst,
		EnvLogLevel, EnvEnvironment, EnvAllowedOrigins,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 2, cfg.Tracker.RequiredStreak)
	assert.Equal(t, time.Second, cfg.Notify.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Notify.MaxDelay)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, ChannelLog, cfg.Notify.Channel)
}

func TestLoadFromEnv_DatabaseURLSelectsPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDatabaseURL, "postgres://localhost/lumra")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
}

func TestLoadFromEnv_PostgresWithoutURL(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStore, StorePostgres)

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvDatabaseURL)
}

func TestLoadFromEnv_WebhookNeedsSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvNotifyChannel, ChannelWebhook)
	t.Setenv(EnvWebhookURL, "https://example.test/hook")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvWebhookSecret)
}

func TestLoadFromEnv_RejectsZeroStreak(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRequiredStreak, "0")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_FileThenEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "lumra.yaml")
	body := []byte(`
tracker:
  required_streak: 3
notify:
  base_delay: 2s
  max_delay: 30s
  workers: 8
ingest:
  rate_per_second: 0.5
  burst: 2
allowed_origins:
  - https://app.lumra.test
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvNotifyWorkers, "2")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Tracker.RequiredStreak)
	assert.Equal(t, 2*time.Second, cfg.Notify.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Notify.MaxDelay)
	assert.Equal(t, 2, cfg.Notify.Workers)
	assert.InDelta(t, 0.5, cfg.Ingest.RatePerSecond, 1e-9)
	assert.Equal(t, 2, cfg.Ingest.Burst)
	assert.Equal(t, []string{"https://app.lumra.test"}, cfg.AllowedOrigins)
}

func TestApplyYAML_BadDuration(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyYAML([]byte("notify:\n  base_delay: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify.base_delay")
}
