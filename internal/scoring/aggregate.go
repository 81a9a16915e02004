package scoring

import "github.com/opensource-finance/verdant/internal/domain"

// EffectiveWeights renormalizes the weights of the metrics that have a
// normalized value so they sum to 1. Metrics are visited in canonical order.
// When every present weight is zero the present metrics share equally.
func EffectiveWeights(normalized map[domain.MetricKey]*float64, weights map[domain.MetricKey]float64) map[domain.MetricKey]float64 {
	present := make([]domain.MetricKey, 0, len(normalized))
	total := 0.0
	for _, spec := range domain.Metrics {
		v, ok := normalized[spec.Key]
		if !ok || v == nil {
			continue
		}
		present = append(present, spec.Key)
		if w := weights[spec.Key]; w > 0 {
			total += w
		}
	}

	out := make(map[domain.MetricKey]float64, len(present))
	for _, k := range present {
		if total > 0 {
			w := weights[k]
			if w < 0 {
				w = 0
			}
			out[k] = w / total
		} else {
			out[k] = 1 / float64(len(present))
		}
	}
	return out
}

// AggregatePillar returns the weighted mean of the present normalized values.
// A pillar with nothing disclosed scores 0 so the supplier stays orderable.
func AggregatePillar(normalized map[domain.MetricKey]*float64, weights map[domain.MetricKey]float64) float64 {
	eff := EffectiveWeights(normalized, weights)
	if len(eff) == 0 {
		return 0
	}
	sum := 0.0
	for _, spec := range domain.Metrics {
		w, ok := eff[spec.Key]
		if !ok {
			continue
		}
		sum += *normalized[spec.Key] * w
	}
	return sum
}

// pillarInputs splits metric scores into the normalized values and weights of one pillar.
func pillarInputs(metrics map[domain.MetricKey]domain.MetricScore, p domain.Pillar) (map[domain.MetricKey]*float64, map[domain.MetricKey]float64) {
	specs := domain.PillarMetrics(p)
	values := make(map[domain.MetricKey]*float64, len(specs))
	weights := make(map[domain.MetricKey]float64, len(specs))
	for _, spec := range specs {
		ms := metrics[spec.Key]
		values[spec.Key] = ms.Normalized
		weights[spec.Key] = ms.Weight
	}
	return values, weights
}
