package scoring

import (
	"math"

	"github.com/opensource-finance/verdant/internal/domain"
)

// NormalizeRisk maps a risk input to [0,1]. Values above 1 are read as
// percentages. NaN and infinite values are unknown.
func NormalizeRisk(v *float64) *float64 {
	if !finite(v) {
		return nil
	}
	r := *v
	if r > 1 {
		r /= 100
	}
	r = clamp(r, 0, 1)
	return &r
}

type weightedRisk struct {
	value  float64
	weight float64
}

func availableRisks(risks domain.RiskValues, w domain.RiskWeights) []weightedRisk {
	out := make([]weightedRisk, 0, 3)
	for _, r := range []struct {
		v *float64
		w float64
	}{
		{risks.Geopolitical, w.Geopolitical},
		{risks.Climate, w.Climate},
		{risks.Labor, w.Labor},
	} {
		if n := NormalizeRisk(r.v); n != nil {
			out = append(out, weightedRisk{value: *n, weight: math.Max(r.w, 0)})
		}
	}
	return out
}

// AggregateRisk is the weighted mean of the available risks, with weights
// renormalized over them. It returns false when no risk is available.
func AggregateRisk(risks domain.RiskValues, w domain.RiskWeights) (float64, bool) {
	avail := availableRisks(risks, w)
	if len(avail) == 0 {
		return 0, false
	}
	total := 0.0
	for _, r := range avail {
		total += r.weight
	}
	raw := 0.0
	for _, r := range avail {
		if total > 0 {
			raw += r.value * r.weight / total
		} else {
			raw += r.value / float64(len(avail))
		}
	}
	return raw, true
}

// ComputePenalty returns the threshold penalty in score points.
// Nil means not applicable (risk disabled); a pointer to 0 means no risk was
// disclosed or none exceeds the threshold. The penalty has no upper bound.
func ComputePenalty(risks domain.RiskValues, settings domain.RiskSettings) *float64 {
	if !settings.Enabled {
		return nil
	}
	raw, ok := AggregateRisk(risks, settings.Weights)
	if !ok {
		return domain.Float(0)
	}
	excess := math.Max(0, raw-settings.Threshold)
	return domain.Float(settings.Lambda * excess * 100)
}

// AverageRiskFactor returns the simple mean of the available risks, or the
// default factor when none is disclosed. Nil when risk is disabled.
func AverageRiskFactor(risks domain.RiskValues, settings domain.RiskSettings) *float64 {
	if !settings.Enabled {
		return nil
	}
	avail := availableRisks(risks, settings.Weights)
	if len(avail) == 0 {
		return domain.Float(settings.DefaultFactor)
	}
	sum := 0.0
	for _, r := range avail {
		sum += r.value
	}
	return domain.Float(sum / float64(len(avail)))
}
