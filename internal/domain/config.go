package domain

import "time"

// Config holds the complete Verdant configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Engine settings
	Scoring   ScoringConfig   `json:"scoring" yaml:"scoring"`
	Bands     BandsConfig     `json:"bands" yaml:"bands"`
	Scenarios ScenarioConfig  `json:"scenarios" yaml:"scenarios"`
	Worker    WorkerConfig    `json:"worker" yaml:"worker"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rate_limit"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// BandsConfig points at the reference band file. Empty path uses built-in bands.
type BandsConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ScenarioConfig holds scenario execution settings.
type ScenarioConfig struct {
	// Workers bounds per-run parallelism (suppliers and variants).
	Workers int `json:"workers" yaml:"workers"`

	// CacheTTL is how long finished results stay in the cache.
	CacheTTL time.Duration `json:"cacheTtl" yaml:"cache_ttl"`

	// DefaultSeed seeds S3 when the request carries none.
	DefaultSeed uint64 `json:"defaultSeed" yaml:"default_seed"`
}

// WorkerConfig controls the async scenario worker.
type WorkerConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Count   int      `json:"count" yaml:"count"`
	Tenants []string `json:"tenants" yaml:"tenants"`
}

// RateLimitConfig bounds requests per tenant per window.
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Requests int64         `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"service_name"`
	ExporterType string `json:"exporterType" yaml:"exporter_type"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and the in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./verdant.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Scoring: DefaultScoringConfig(),
		Scenarios: ScenarioConfig{
			Workers:     8,
			CacheTTL:    30 * time.Minute,
			DefaultSeed: 42,
		},
		Worker: WorkerConfig{
			Enabled: false,
			Count:   2,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 120,
			Window:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "verdant",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "verdant",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   500,
		LocalTTL:       10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "verdant-workers",
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
