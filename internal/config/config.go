// Package config loads the Verdant configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/verdant/internal/domain"
)

// Load builds the configuration. Defaults come from the tier named by
// VERDANT_TIER, the optional YAML file is applied on top, and VERDANT_*
// environment variables win over both.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("VERDANT_TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("VERDANT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("VERDANT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("VERDANT_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("VERDANT_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("VERDANT_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("VERDANT_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("VERDANT_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("VERDANT_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("VERDANT_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("VERDANT_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("VERDANT_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("VERDANT_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}
	if v := os.Getenv("VERDANT_BANDS_PATH"); v != "" {
		cfg.Bands.Path = v
	}
	if v := os.Getenv("VERDANT_SCENARIO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scenarios.Workers = n
		}
	}
	if v := os.Getenv("VERDANT_SCENARIO_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Scenarios.DefaultSeed = n
		}
	}
	if v := os.Getenv("VERDANT_SCENARIO_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scenarios.CacheTTL = d
		}
	}
	if v := os.Getenv("VERDANT_ASYNC_WORKER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Worker.Enabled = b
		}
	}
	if v := os.Getenv("VERDANT_TENANTS"); v != "" {
		cfg.Worker.Tenants = splitList(v)
	}
	if v := os.Getenv("VERDANT_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RateLimit.Requests = n
			cfg.RateLimit.Enabled = n > 0
		}
	}
	if v := os.Getenv("VERDANT_NORMALIZATION"); v != "" {
		cfg.Scoring.Normalization = domain.NormalizationMode(v)
	}
	if v := os.Getenv("VERDANT_POLICY"); v != "" {
		cfg.Scoring.Policy = domain.FinalScorePolicy(v)
	}
	if v := os.Getenv("VERDANT_TRACING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
	if v := os.Getenv("VERDANT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if os.Getenv("VERDANT_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
