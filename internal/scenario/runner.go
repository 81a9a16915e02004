// Package scenario runs what-if experiments over a scored supplier population.
package scenario

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/scoring"
	"github.com/opensource-finance/verdant/internal/stats"
)

// Request is one scenario invocation. The population is copied before use.
type Request struct {
	ID         string
	Kind       domain.ScenarioKind
	Population []*domain.SupplierRecord
	Config     domain.ScoringConfig
	Bands      *domain.ReferenceBands
	Proxies    domain.ProxyValues
	Seed       uint64
	Parameters domain.ScenarioParameters
}

// Runner executes scenarios. It holds no state between runs.
type Runner struct {
	workers int
}

// NewRunner creates a runner that bounds parallel work at workers.
func NewRunner(workers int) *Runner {
	if workers <= 0 {
		workers = scoring.DefaultWorkers
	}
	return &Runner{workers: workers}
}

// Run executes one scenario.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.ScenarioResult, error) {
	start := time.Now()

	if req.Bands.Empty() {
		return nil, domain.ErrNoBands
	}

	pop := domain.ClonePopulation(req.Population)
	cfg := req.Config.Clone()
	if req.Kind == domain.ScenarioNormalizationAblation {
		cfg.Normalization = domain.NormalizeIndustry
	}

	baseline, err := r.score(ctx, pop, cfg, req)
	if err != nil {
		return nil, fmt.Errorf("score baseline: %w", err)
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	res := &domain.ScenarioResult{
		ID:       id,
		Kind:     req.Kind,
		Baseline: domain.RankedTable{Label: "baseline", Rows: baseline},
	}

	switch req.Kind {
	case domain.ScenarioOptimization:
		res.Optimization = Optimize(pop, baseline, req.Parameters)
	case domain.ScenarioWeightSensitivity:
		res.Variants, err = r.runSensitivity(ctx, pop, cfg, baseline, req)
	case domain.ScenarioMissingness:
		seed := req.Seed
		res.Seed = &seed
		res.Variants, err = r.runMissingness(ctx, pop, cfg, baseline, req)
	case domain.ScenarioNormalizationAblation:
		res.Variants, res.Disparity, err = r.runAblation(ctx, pop, cfg, baseline, req)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownScenario, req.Kind)
	}
	if err != nil {
		return nil, err
	}

	res.DurationMs = time.Since(start).Milliseconds()
	res.CompletedAt = time.Now().UTC()
	return res, nil
}

func (r *Runner) score(ctx context.Context, pop []*domain.SupplierRecord, cfg domain.ScoringConfig, req Request) ([]*domain.ScoreBreakdown, error) {
	return scoring.ScorePopulation(ctx, pop, scoring.Input{
		Config:  cfg,
		Bands:   req.Bands,
		Proxies: req.Proxies,
		Workers: r.workers,
	})
}

// forEach runs fn for indices [0,n) with bounded concurrency and returns the
// first error by index.
func (r *Runner) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	errs := make([]error, n)
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, r.workers)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			errs[idx] = fn(ctx, idx)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Compare computes the statistics of other against base.
func Compare(base, other []*domain.ScoreBreakdown, topK int) domain.Comparison {
	baseRanks, otherRanks := domain.RankMap(base), domain.RankMap(other)

	var c domain.Comparison
	if tau, ok := stats.KendallTau(baseRanks, otherRanks); ok {
		c.KendallTau = &tau
	}
	c.MeanRankShift, c.MaxRankShift, c.Matched = stats.RankShift(baseRanks, otherRanks)
	if mae, ok := stats.MAE(domain.ScoreMap(base), domain.ScoreMap(other)); ok {
		c.MAE = &mae
	}
	if topK > 0 {
		c.TopK = topK
		baseTable := domain.RankedTable{Rows: base}
		otherTable := domain.RankedTable{Rows: other}
		if p, ok := stats.TopKPreservation(baseTable.IDs(), otherTable.IDs(), topK); ok {
			c.TopKPreservation = &p
		}
	}
	return c
}
