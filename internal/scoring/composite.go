package scoring

import (
	"github.com/opensource-finance/verdant/internal/domain"
)

// Completeness is the share of expected disclosure fields that are present.
// Proxy substitutions do not count as disclosure.
func Completeness(rec *domain.SupplierRecord) float64 {
	return float64(rec.DisclosedCount()) / float64(domain.ExpectedFields)
}

// Score computes the full breakdown of one supplier. The only error is
// domain.ErrNoBands; degraded inputs show up in Completeness, Capped and a
// nil RiskPenalty instead.
func Score(rec *domain.SupplierRecord, cfg domain.ScoringConfig, bands *domain.ReferenceBands, proxies domain.ProxyValues) (*domain.ScoreBreakdown, error) {
	metrics, err := NormalizeRecord(rec, cfg, bands, proxies)
	if err != nil {
		return nil, err
	}

	b := &domain.ScoreBreakdown{
		SupplierID: rec.ID,
		Name:       rec.Name,
		Industry:   rec.Industry,
		Country:    rec.Country,
		Metrics:    metrics,
		Policy:     cfg.Policy,
	}

	for _, p := range domain.Pillars {
		values, weights := pillarInputs(metrics, p)
		score := AggregatePillar(values, weights)
		switch p {
		case domain.PillarEnvironmental:
			b.Environmental = score
		case domain.PillarSocial:
			b.Social = score
		case domain.PillarGovernance:
			b.Governance = score
		}
	}

	pw := cfg.PillarWeights.Normalized()
	b.CompositeNoRisk = b.Environmental*pw.Environmental + b.Social*pw.Social + b.Governance*pw.Governance

	final := b.CompositeNoRisk
	risks := rec.Risks()
	switch cfg.Policy {
	case domain.PolicyRiskFactor:
		b.RiskFactor = AverageRiskFactor(risks, cfg.Risk)
		if b.RiskFactor != nil {
			final = b.CompositeNoRisk * (1 - *b.RiskFactor)
		}
	default:
		b.RiskPenalty = ComputePenalty(risks, cfg.Risk)
		if b.RiskPenalty != nil {
			final = b.CompositeNoRisk - *b.RiskPenalty
		}
	}

	b.Completeness = Completeness(rec)
	if b.Completeness < cfg.CompletenessThreshold {
		b.Capped = true
		if final > cfg.CompletenessCap {
			final = cfg.CompletenessCap
		}
	}

	b.FinalScore = clamp(final, 0, 100)
	return b, nil
}
