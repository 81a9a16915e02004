package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/metrics"
	"github.com/opensource-finance/verdant/internal/proxy"
	"github.com/opensource-finance/verdant/internal/repository"
	"github.com/opensource-finance/verdant/internal/scenario"
)

var tracer = otel.Tracer("verdant-worker")

// PipelineConfig holds the defaults a pipeline falls back to when a tenant
// has stored nothing.
type PipelineConfig struct {
	Workers     int
	CacheTTL    time.Duration
	DefaultSeed uint64
	Scoring     domain.ScoringConfig
	Bands       *domain.ReferenceBands
}

// Pipeline loads a tenant's inputs, runs a scenario and records the outcome.
// The API uses it for synchronous runs and the Worker for queued ones.
type Pipeline struct {
	repo    domain.Repository
	cache   domain.Cache
	proxies *proxy.Service
	runner  *scenario.Runner
	cfg     PipelineConfig
}

// NewPipeline creates a new scenario pipeline. cache and proxies may be nil.
func NewPipeline(repo domain.Repository, cache domain.Cache, proxies *proxy.Service, cfg PipelineConfig) *Pipeline {
	if cfg.Scoring.Policy == "" {
		cfg.Scoring = domain.DefaultScoringConfig()
	}
	return &Pipeline{
		repo:    repo,
		cache:   cache,
		proxies: proxies,
		runner:  scenario.NewRunner(cfg.Workers),
		cfg:     cfg,
	}
}

// Bands returns the tenant's latest reference bands, or the configured
// fallback when none are stored.
func (p *Pipeline) Bands(ctx context.Context, tenantID string) (*domain.ReferenceBands, error) {
	b, err := p.repo.GetBands(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		if p.cfg.Bands.Empty() {
			return nil, domain.ErrNoBands
		}
		return p.cfg.Bands, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bands: %w", err)
	}
	return b, nil
}

// Settings returns the tenant's scoring settings with override applied on
// top. Sections the override leaves at their zero value are inherited.
func (p *Pipeline) Settings(ctx context.Context, tenantID string, override *domain.ScoringConfig) (domain.ScoringConfig, error) {
	base := p.cfg.Scoring.Clone()
	stored, err := p.repo.GetSettings(ctx, tenantID)
	switch {
	case err == nil:
		base = stored.Clone()
	case !errors.Is(err, repository.ErrNotFound):
		return domain.ScoringConfig{}, fmt.Errorf("failed to load settings: %w", err)
	}

	cfg := base
	if override != nil {
		cfg = override.Inherit(base)
	}
	if err := cfg.Validate(); err != nil {
		return domain.ScoringConfig{}, err
	}
	return cfg, nil
}

// Proxies returns the tenant's industry proxies, or nil when disabled.
func (p *Pipeline) Proxies(ctx context.Context, tenantID string, enabled bool) (domain.ProxyValues, error) {
	if !enabled || p.proxies == nil {
		return nil, nil
	}
	return p.proxies.GetProxies(ctx, tenantID)
}

// Prepare validates a request, assigns its run ID and stores it as pending.
func (p *Pipeline) Prepare(ctx context.Context, tenantID string, req *domain.ScenarioRequest) (*domain.ScenarioRun, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: scenario request is required", repository.ErrInvalidInput)
	}
	kind, err := domain.ParseScenarioKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	req.Kind = kind
	req.TenantID = tenantID
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	run := &domain.ScenarioRun{
		ID:        req.RunID,
		TenantID:  tenantID,
		Kind:      kind,
		Status:    domain.RunPending,
		Request:   *req,
		CreatedAt: time.Now().UTC(),
	}
	if existing, err := p.repo.GetScenarioRun(ctx, tenantID, run.ID); err == nil {
		if existing.Status != domain.RunPending {
			return nil, fmt.Errorf("%w: run %s already %s", repository.ErrInvalidInput, run.ID, existing.Status)
		}
		run.CreatedAt = existing.CreatedAt
	}
	if err := p.repo.SaveScenarioRun(ctx, tenantID, run); err != nil {
		return nil, fmt.Errorf("failed to save scenario run: %w", err)
	}
	return run, nil
}

// Execute runs a scenario to completion. The stored run is updated either
// way; a failed run is returned alongside its error.
func (p *Pipeline) Execute(ctx context.Context, tenantID string, req *domain.ScenarioRequest) (*domain.ScenarioRun, error) {
	start := time.Now()

	run, err := p.Prepare(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "scenario.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("run_id", run.ID),
		attribute.String("kind", string(run.Kind)),
	)

	result, err := p.run(ctx, tenantID, req)
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	status := domain.RunCompleted
	if err != nil {
		status = domain.RunFailed
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		result.TenantID = tenantID
		run.Result = result
	}
	run.Status = status
	metrics.ObserveScenario(string(run.Kind), string(status), time.Since(start))

	persistCtx := context.WithoutCancel(ctx)
	if saveErr := p.repo.SaveScenarioRun(persistCtx, tenantID, run); saveErr != nil {
		slog.Error("failed to save scenario run",
			"run_id", run.ID,
			"tenant_id", tenantID,
			"error", saveErr,
		)
	}
	if result != nil && p.cache != nil {
		if cacheErr := p.cache.SetScenarioResult(persistCtx, tenantID, result, p.cfg.CacheTTL); cacheErr != nil {
			slog.Warn("failed to cache scenario result",
				"run_id", run.ID,
				"error", cacheErr,
			)
		}
	}

	if err != nil {
		slog.Warn("scenario failed",
			"run_id", run.ID,
			"tenant_id", tenantID,
			"kind", run.Kind,
			"error", err,
		)
		return run, err
	}

	slog.Info("scenario completed",
		"run_id", run.ID,
		"tenant_id", tenantID,
		"kind", run.Kind,
		"suppliers", len(result.Baseline.Rows),
		"variants", len(result.Variants),
		"duration_ms", result.DurationMs,
	)
	return run, nil
}

func (p *Pipeline) run(ctx context.Context, tenantID string, req *domain.ScenarioRequest) (*domain.ScenarioResult, error) {
	records, err := p.repo.ListSuppliers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	bands, err := p.Bands(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg, err := p.Settings(ctx, tenantID, req.Config)
	if err != nil {
		return nil, err
	}
	proxies, err := p.Proxies(ctx, tenantID, req.UseProxies)
	if err != nil {
		return nil, err
	}

	seed := p.cfg.DefaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	return p.runner.Run(ctx, scenario.Request{
		ID:         req.RunID,
		Kind:       req.Kind,
		Population: records,
		Config:     cfg,
		Bands:      bands,
		Proxies:    proxies,
		Seed:       seed,
		Parameters: req.Parameters,
	})
}

// Result returns a finished scenario result, reading the cache before the
// repository. A run that has not completed yields ErrNotFound.
func (p *Pipeline) Result(ctx context.Context, tenantID, runID string) (*domain.ScenarioResult, error) {
	if p.cache != nil {
		if cached, err := p.cache.GetScenarioResult(ctx, tenantID, runID); err == nil && cached != nil {
			return cached, nil
		}
	}
	run, err := p.repo.GetScenarioRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Result == nil {
		return nil, fmt.Errorf("%w: run %s is %s", repository.ErrNotFound, runID, run.Status)
	}
	return run.Result, nil
}
