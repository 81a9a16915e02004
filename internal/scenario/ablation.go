package scenario

import (
	"context"
	"fmt"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/stats"
)

// runAblation rescores with global bands and compares against the
// industry-band baseline.
func (r *Runner) runAblation(ctx context.Context, pop []*domain.SupplierRecord, cfg domain.ScoringConfig, baseline []*domain.ScoreBreakdown, req Request) ([]domain.ScenarioVariant, *domain.DisparitySummary, error) {
	gcfg := cfg.Clone()
	gcfg.Normalization = domain.NormalizeGlobal

	rows, err := r.score(ctx, pop, gcfg, req)
	if err != nil {
		return nil, nil, fmt.Errorf("score global bands: %w", err)
	}

	groups := make(map[string]string, len(pop))
	for _, rec := range pop {
		groups[rec.ID] = rec.Industry
	}
	byIndustry, maxD, meanD := stats.Disparity(groups, domain.ScoreMap(baseline), domain.ScoreMap(rows))

	variant := domain.ScenarioVariant{
		Label:         "global bands",
		Normalization: domain.NormalizeGlobal,
		Table:         domain.RankedTable{Label: "global bands", Rows: rows},
		Comparison:    Compare(baseline, rows, req.Parameters.TopK),
	}
	return []domain.ScenarioVariant{variant}, &domain.DisparitySummary{
		ByIndustry: byIndustry,
		Max:        maxD,
		Mean:       meanD,
	}, nil
}
