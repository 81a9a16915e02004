// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/verdant/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSupplier inserts or replaces a supplier record.
func (r *SQLRepository) SaveSupplier(ctx context.Context, tenantID string, s *domain.SupplierRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: supplier id is required", ErrInvalidInput)
	}

	rec := s.Clone()
	rec.TenantID = tenantID
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode supplier: %w", err)
	}

	query := `
		INSERT INTO suppliers (id, tenant_id, name, industry, country, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			industry = excluded.industry,
			country = excluded.country,
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.Name, rec.Industry, rec.Country, string(data), rec.UpdatedAt,
	)
	return err
}

// GetSupplier retrieves a supplier by ID with tenant isolation.
func (r *SQLRepository) GetSupplier(ctx context.Context, tenantID string, supplierID string) (*domain.SupplierRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT data FROM suppliers WHERE tenant_id = ? AND id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, supplierID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.SupplierRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode supplier %s: %w", supplierID, err)
	}
	return &rec, nil
}

// ListSuppliers returns every supplier of a tenant ordered by ID.
func (r *SQLRepository) ListSuppliers(ctx context.Context, tenantID string) ([]*domain.SupplierRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT data FROM suppliers WHERE tenant_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := []*domain.SupplierRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec domain.SupplierRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode supplier: %w", err)
		}
		suppliers = append(suppliers, &rec)
	}

	return suppliers, rows.Err()
}

// DeleteSupplier removes a supplier.
func (r *SQLRepository) DeleteSupplier(ctx context.Context, tenantID string, supplierID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM suppliers WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, supplierID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SaveBands stores a version of the tenant's reference bands. An empty
// version is stamped with the current time.
func (r *SQLRepository) SaveBands(ctx context.Context, tenantID string, bands *domain.ReferenceBands) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if bands.Empty() {
		return fmt.Errorf("%w: %v", ErrInvalidInput, domain.ErrNoBands)
	}

	now := time.Now().UTC()
	if bands.Version == "" {
		bands.Version = now.Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}

	query := `
		INSERT INTO reference_bands (tenant_id, version, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, version) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), tenantID, bands.Version, string(data), now)
	return err
}

// GetBands returns the most recently saved bands.
func (r *SQLRepository) GetBands(ctx context.Context, tenantID string) (*domain.ReferenceBands, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT data FROM reference_bands
		WHERE tenant_id = ?
		ORDER BY created_at DESC, version DESC
		LIMIT 1
	`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var bands domain.ReferenceBands
	if err := json.Unmarshal([]byte(data), &bands); err != nil {
		return nil, fmt.Errorf("failed to decode bands: %w", err)
	}
	return &bands, nil
}

// SaveSettings stores the tenant's scoring configuration after validating it.
func (r *SQLRepository) SaveSettings(ctx context.Context, tenantID string, cfg *domain.ScoringConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if cfg == nil {
		return fmt.Errorf("%w: settings are required", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `
		INSERT INTO scoring_settings (tenant_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), tenantID, string(data), time.Now().UTC())
	return err
}

// GetSettings returns the tenant's scoring configuration.
func (r *SQLRepository) GetSettings(ctx context.Context, tenantID string) (*domain.ScoringConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT data FROM scoring_settings WHERE tenant_id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cfg domain.ScoringConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &cfg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
