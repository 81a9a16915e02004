package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/verdant/internal/domain"
)

var envVars = []string{
	"VERDANT_TIER", "VERDANT_HOST", "VERDANT_PORT", "VERDANT_DB_DRIVER", "VERDANT_DB_PATH",
	"VERDANT_POSTGRES_HOST", "VERDANT_POSTGRES_USER", "VERDANT_POSTGRES_PASSWORD", "VERDANT_POSTGRES_DB",
	"VERDANT_REDIS_ADDR", "VERDANT_REDIS_PASSWORD", "VERDANT_NATS_URL", "VERDANT_NATS_TOKEN",
	"VERDANT_BANDS_PATH", "VERDANT_SCENARIO_WORKERS", "VERDANT_SCENARIO_SEED", "VERDANT_SCENARIO_CACHE_TTL",
	"VERDANT_ASYNC_WORKER", "VERDANT_TENANTS", "VERDANT_RATE_LIMIT", "VERDANT_NORMALIZATION",
	"VERDANT_POLICY", "VERDANT_TRACING", "VERDANT_LOG_LEVEL", "VERDANT_DEBUG",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, domain.PolicyThresholdPenalty, cfg.Scoring.Policy)
	assert.Equal(t, domain.NormalizeIndustry, cfg.Scoring.Normalization)
	assert.Equal(t, uint64(42), cfg.Scenarios.DefaultSeed)
	assert.False(t, cfg.Worker.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadProTier(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERDANT_TIER", "pro")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.Equal(t, "verdant-workers", cfg.EventBus.NATSQueueGroup)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "verdant.yaml")
	data := []byte(`
server:
  port: 9100
scoring:
  policy: risk_factor
  pillar_weights:
    environmental: 0.5
    social: 0.3
    governance: 0.2
scenarios:
  default_seed: 7
worker:
  tenants: [acme, globex]
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, domain.PolicyRiskFactor, cfg.Scoring.Policy)
	assert.InDelta(t, 0.5, cfg.Scoring.PillarWeights.Environmental, 1e-9)
	assert.Equal(t, uint64(7), cfg.Scenarios.DefaultSeed)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Worker.Tenants)
	// Untouched sections keep their defaults
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "verdant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600))

	t.Setenv("VERDANT_PORT", "9200")
	t.Setenv("VERDANT_DB_PATH", "/tmp/esg.db")
	t.Setenv("VERDANT_ASYNC_WORKER", "true")
	t.Setenv("VERDANT_TENANTS", " acme, ,globex ")
	t.Setenv("VERDANT_RATE_LIMIT", "0")
	t.Setenv("VERDANT_SCENARIO_SEED", "1234")
	t.Setenv("VERDANT_SCENARIO_CACHE_TTL", "5m")
	t.Setenv("VERDANT_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "/tmp/esg.db", cfg.Repository.SQLitePath)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Worker.Tenants)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, uint64(1234), cfg.Scenarios.DefaultSeed)
	assert.Equal(t, 5*time.Minute, cfg.Scenarios.CacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERDANT_PORT", "not-a-number")
	t.Setenv("VERDANT_ASYNC_WORKER", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Worker.Enabled)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})

	t.Run("BadYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("UnknownPolicy", func(t *testing.T) {
		t.Setenv("VERDANT_POLICY", "coin_flip")
		_, err := Load("")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	})
}
