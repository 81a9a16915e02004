package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/verdant/internal/domain"
)

// DefaultRunLimit bounds ListScenarioRuns when no limit is given.
const DefaultRunLimit = 50

// SaveTrace stores a calculation trace.
func (r *SQLRepository) SaveTrace(ctx context.Context, tenantID string, trace *domain.CalculationTrace) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	steps, err := json.Marshal(trace.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode trace steps: %w", err)
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO calculation_traces (id, tenant_id, supplier_id, run_id, final_score, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		trace.ID, tenantID, trace.SupplierID, trace.RunID,
		trace.FinalScore, string(steps), trace.CreatedAt,
	)
	return err
}

// GetLatestTrace returns the newest trace for a supplier.
func (r *SQLRepository) GetLatestTrace(ctx context.Context, tenantID string, supplierID string) (*domain.CalculationTrace, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, supplier_id, run_id, final_score, steps, created_at
		FROM calculation_traces
		WHERE tenant_id = ? AND supplier_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var trace domain.CalculationTrace
	var steps string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, supplierID).Scan(
		&trace.ID, &trace.TenantID, &trace.SupplierID, &trace.RunID,
		&trace.FinalScore, &steps, &trace.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &trace.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode trace steps: %w", err)
	}
	return &trace, nil
}

// SaveScenarioRun inserts a run or updates its status and result.
func (r *SQLRepository) SaveScenarioRun(ctx context.Context, tenantID string, run *domain.ScenarioRun) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	request, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("failed to encode scenario request: %w", err)
	}

	var result sql.NullString
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to encode scenario result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scenario_runs (id, tenant_id, kind, status, request, result, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, tenantID, string(run.Kind), string(run.Status),
		string(request), result, run.Error, run.CreatedAt, completedAt,
	)
	return err
}

// GetScenarioRun retrieves a run with tenant isolation.
func (r *SQLRepository) GetScenarioRun(ctx context.Context, tenantID string, runID string) (*domain.ScenarioRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, kind, status, request, result, error, created_at, completed_at
		FROM scenario_runs
		WHERE tenant_id = ? AND id = ?
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListScenarioRuns returns the newest runs first.
func (r *SQLRepository) ListScenarioRuns(ctx context.Context, tenantID string, limit int) ([]*domain.ScenarioRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	query := `
		SELECT id, tenant_id, kind, status, request, result, error, created_at, completed_at
		FROM scenario_runs
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*domain.ScenarioRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.ScenarioRun, error) {
	var run domain.ScenarioRun
	var kind, status, request string
	var result, runErr sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(
		&run.ID, &run.TenantID, &kind, &status,
		&request, &result, &runErr, &run.CreatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	run.Kind = domain.ScenarioKind(kind)
	run.Status = domain.RunStatus(status)
	run.Error = runErr.String
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(request), &run.Request); err != nil {
		return nil, fmt.Errorf("failed to decode scenario request: %w", err)
	}
	if result.Valid && result.String != "" {
		run.Result = &domain.ScenarioResult{}
		if err := json.Unmarshal([]byte(result.String), run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode scenario result: %w", err)
		}
	}
	return &run, nil
}

// SaveScreen stores a screen configuration with tenant isolation.
func (r *SQLRepository) SaveScreen(ctx context.Context, tenantID string, screen *domain.ScreenConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if screen == nil || screen.ID == "" {
		return fmt.Errorf("%w: screen id is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(screen.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode screen bands: %w", err)
	}

	enabled := 0
	if screen.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screens (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		screen.ID, tenantID, screen.Name, screen.Description,
		screen.Version, screen.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetScreen retrieves a screen configuration.
func (r *SQLRepository) GetScreen(ctx context.Context, tenantID string, screenID string) (*domain.ScreenConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM screens
		WHERE tenant_id = ? AND id = ?
	`

	screen, err := scanScreen(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, screenID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return screen, err
}

// ListScreens returns every screen of a tenant, enabled or not, ordered by ID.
func (r *SQLRepository) ListScreens(ctx context.Context, tenantID string) ([]*domain.ScreenConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM screens
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	screens := []*domain.ScreenConfig{}
	for rows.Next() {
		screen, err := scanScreen(rows)
		if err != nil {
			return nil, err
		}
		screens = append(screens, screen)
	}
	return screens, rows.Err()
}

func scanScreen(row scanner) (*domain.ScreenConfig, error) {
	var cfg domain.ScreenConfig
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &cfg.Bands); err != nil {
		return nil, fmt.Errorf("failed to decode screen bands: %w", err)
	}
	return &cfg, nil
}
