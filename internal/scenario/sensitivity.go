package scenario

import (
	"context"
	"fmt"

	"github.com/opensource-finance/verdant/internal/domain"
)

// DefaultFactors perturb the chosen pillar weight by +10%, −10%, +20% and −20%.
var DefaultFactors = []float64{1.10, 0.90, 1.20, 0.80}

// PerturbWeights scales one pillar weight by factor and renormalizes all three.
func PerturbWeights(w domain.PillarWeights, p domain.Pillar, factor float64) domain.PillarWeights {
	base := w.Normalized()
	return base.With(p, base.Get(p)*factor).Normalized()
}

func (r *Runner) runSensitivity(ctx context.Context, pop []*domain.SupplierRecord, cfg domain.ScoringConfig, baseline []*domain.ScoreBreakdown, req Request) ([]domain.ScenarioVariant, error) {
	pillar := req.Parameters.Pillar
	if pillar == "" {
		pillar = domain.PillarEnvironmental
	}
	factors := req.Parameters.Factors
	if len(factors) == 0 {
		factors = DefaultFactors
	}
	topK := req.Parameters.TopK

	variants := make([]domain.ScenarioVariant, len(factors))
	err := r.forEach(ctx, len(factors), func(ctx context.Context, i int) error {
		f := factors[i]
		weights := PerturbWeights(cfg.PillarWeights, pillar, f)

		vcfg := cfg.Clone()
		vcfg.PillarWeights = weights
		rows, err := r.score(ctx, pop, vcfg, req)
		if err != nil {
			return fmt.Errorf("score %s x%.2f: %w", pillar, f, err)
		}

		label := fmt.Sprintf("%s %+.0f%%", pillar, (f-1)*100)
		variants[i] = domain.ScenarioVariant{
			Label:         label,
			Factor:        &f,
			PillarWeights: &weights,
			Table:         domain.RankedTable{Label: label, Rows: rows},
			Comparison:    Compare(baseline, rows, topK),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return variants, nil
}
