package scoring

import (
	"fmt"

	"github.com/opensource-finance/verdant/internal/domain"
)

// Trace stage names.
const (
	StageRaw        = "raw"
	StageNormalized = "normalized"
	StageWeighted   = "weighted"
	StageComposite  = "composite"
	StageFinal      = "final"
)

// BuildTrace turns a breakdown into the audit steps
// raw -> normalized -> weighted -> composite -> final.
func BuildTrace(b *domain.ScoreBreakdown) []domain.TraceStep {
	raw := make(map[string]any, len(b.Metrics))
	normalized := make(map[string]any, len(b.Metrics))
	proxied := 0
	for _, spec := range domain.Metrics {
		ms := b.Metrics[spec.Key]
		raw[string(spec.Key)] = optional(ms.Raw)
		normalized[string(spec.Key)] = optional(ms.Normalized)
		if ms.Proxied {
			proxied++
		}
	}

	weighted := make(map[string]any, 3)
	for _, p := range domain.Pillars {
		values, weights := pillarInputs(b.Metrics, p)
		eff := EffectiveWeights(values, weights)
		effOut := make(map[string]float64, len(eff))
		for k, w := range eff {
			effOut[string(k)] = w
		}
		weighted[string(p)] = map[string]any{
			"score":   b.Pillar(p),
			"weights": effOut,
		}
	}

	final := map[string]any{
		"policy":       string(b.Policy),
		"riskPenalty":  optional(b.RiskPenalty),
		"riskFactor":   optional(b.RiskFactor),
		"completeness": b.Completeness,
		"capped":       b.Capped,
		"finalScore":   b.FinalScore,
	}

	return []domain.TraceStep{
		{
			Stage:   StageRaw,
			Values:  raw,
			Summary: fmt.Sprintf("%d of %d fields disclosed", countPresent(b, func(ms domain.MetricScore) *float64 { return ms.Raw }), len(domain.Metrics)),
		},
		{
			Stage:   StageNormalized,
			Values:  normalized,
			Summary: fmt.Sprintf("%d metrics normalized, %d from industry proxies", countPresent(b, func(ms domain.MetricScore) *float64 { return ms.Normalized }), proxied),
		},
		{
			Stage:   StageWeighted,
			Values:  weighted,
			Summary: fmt.Sprintf("E=%.2f S=%.2f G=%.2f", b.Environmental, b.Social, b.Governance),
		},
		{
			Stage:   StageComposite,
			Values:  map[string]any{"compositeNoRisk": b.CompositeNoRisk},
			Summary: fmt.Sprintf("composite before risk %.2f", b.CompositeNoRisk),
		},
		{
			Stage:   StageFinal,
			Values:  final,
			Summary: fmt.Sprintf("final %.2f (%s)", b.FinalScore, b.Policy),
		},
	}
}

func countPresent(b *domain.ScoreBreakdown, pick func(domain.MetricScore) *float64) int {
	n := 0
	for _, ms := range b.Metrics {
		if pick(ms) != nil {
			n++
		}
	}
	return n
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
