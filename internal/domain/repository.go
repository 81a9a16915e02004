// Package domain defines the core interfaces and types for Verdant.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Supplier operations
	SaveSupplier(ctx context.Context, tenantID string, s *SupplierRecord) error
	GetSupplier(ctx context.Context, tenantID string, supplierID string) (*SupplierRecord, error)
	ListSuppliers(ctx context.Context, tenantID string) ([]*SupplierRecord, error)
	DeleteSupplier(ctx context.Context, tenantID string, supplierID string) error

	// Reference bands (latest version wins)
	SaveBands(ctx context.Context, tenantID string, bands *ReferenceBands) error
	GetBands(ctx context.Context, tenantID string) (*ReferenceBands, error)

	// Scoring settings
	SaveSettings(ctx context.Context, tenantID string, cfg *ScoringConfig) error
	GetSettings(ctx context.Context, tenantID string) (*ScoringConfig, error)

	// Calculation traces
	SaveTrace(ctx context.Context, tenantID string, trace *CalculationTrace) error
	GetLatestTrace(ctx context.Context, tenantID string, supplierID string) (*CalculationTrace, error)

	// Scenario runs
	SaveScenarioRun(ctx context.Context, tenantID string, run *ScenarioRun) error
	GetScenarioRun(ctx context.Context, tenantID string, runID string) (*ScenarioRun, error)
	ListScenarioRuns(ctx context.Context, tenantID string, limit int) ([]*ScenarioRun, error)

	// Screen configuration operations
	SaveScreen(ctx context.Context, tenantID string, screen *ScreenConfig) error
	GetScreen(ctx context.Context, tenantID string, screenID string) (*ScreenConfig, error)
	ListScreens(ctx context.Context, tenantID string) ([]*ScreenConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
