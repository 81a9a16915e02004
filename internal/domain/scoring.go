package domain

import (
	"fmt"
	"math"
)

// FinalScorePolicy selects how risk adjusts the composite score.
type FinalScorePolicy string

const (
	// PolicyRiskFactor multiplies the composite by (1 - average risk).
	PolicyRiskFactor FinalScorePolicy = "risk_factor"

	// PolicyThresholdPenalty subtracts λ × max(0, risk − T) × 100.
	PolicyThresholdPenalty FinalScorePolicy = "threshold_penalty"
)

// PillarWeights weights the three pillars in the composite.
type PillarWeights struct {
	Environmental float64 `json:"environmental" yaml:"environmental"`
	Social        float64 `json:"social" yaml:"social"`
	Governance    float64 `json:"governance" yaml:"governance"`
}

// Get returns the weight of a pillar.
func (w PillarWeights) Get(p Pillar) float64 {
	switch p {
	case PillarEnvironmental:
		return w.Environmental
	case PillarSocial:
		return w.Social
	case PillarGovernance:
		return w.Governance
	}
	return 0
}

// With returns a copy with one pillar weight replaced.
func (w PillarWeights) With(p Pillar, v float64) PillarWeights {
	switch p {
	case PillarEnvironmental:
		w.Environmental = v
	case PillarSocial:
		w.Social = v
	case PillarGovernance:
		w.Governance = v
	}
	return w
}

// Sum returns the total pillar weight.
func (w PillarWeights) Sum() float64 {
	return w.Environmental + w.Social + w.Governance
}

// Normalized rescales the weights to sum to 1. Negative weights count as 0;
// when nothing positive remains every pillar gets one third.
func (w PillarWeights) Normalized() PillarWeights {
	e, s, g := math.Max(w.Environmental, 0), math.Max(w.Social, 0), math.Max(w.Governance, 0)
	total := e + s + g
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return PillarWeights{Environmental: 1.0 / 3, Social: 1.0 / 3, Governance: 1.0 / 3}
	}
	return PillarWeights{Environmental: e / total, Social: s / total, Governance: g / total}
}

// RiskWeights weights the three risk signals.
type RiskWeights struct {
	Geopolitical float64 `json:"geopolitical" yaml:"geopolitical"`
	Climate      float64 `json:"climate" yaml:"climate"`
	Labor        float64 `json:"labor" yaml:"labor"`
}

// RiskSettings configures the risk adjustment.
type RiskSettings struct {
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Weights RiskWeights `json:"weights" yaml:"weights"`

	// Threshold T below which aggregated risk carries no penalty.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Lambda scales the excess risk into score points.
	Lambda float64 `json:"lambda" yaml:"lambda"`

	// DefaultFactor is used by the risk-factor policy when no risk is disclosed.
	DefaultFactor float64 `json:"defaultFactor" yaml:"default_factor"`
}

// ScoringConfig is the full, explicit input to one scoring invocation.
type ScoringConfig struct {
	PillarWeights PillarWeights         `json:"pillarWeights" yaml:"pillar_weights"`
	MetricWeights map[MetricKey]float64 `json:"metricWeights" yaml:"metric_weights"`
	Risk          RiskSettings          `json:"risk" yaml:"risk"`
	Policy        FinalScorePolicy      `json:"policy" yaml:"policy"`

	CompletenessThreshold float64 `json:"completenessThreshold" yaml:"completeness_threshold"`
	CompletenessCap       float64 `json:"completenessCap" yaml:"completeness_cap"`

	Normalization NormalizationMode `json:"normalization" yaml:"normalization"`
}

// DefaultScoringConfig returns the default scoring configuration.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		PillarWeights: PillarWeights{Environmental: 0.4, Social: 0.3, Governance: 0.3},
		MetricWeights: DefaultMetricWeights(),
		Risk: RiskSettings{
			Enabled:       true,
			Weights:       RiskWeights{Geopolitical: 0.4, Climate: 0.35, Labor: 0.25},
			Threshold:     0.3,
			Lambda:        0.5,
			DefaultFactor: 0.15,
		},
		Policy:                PolicyThresholdPenalty,
		CompletenessThreshold: 0.70,
		CompletenessCap:       50,
		Normalization:         NormalizeIndustry,
	}
}

// DefaultMetricWeights returns the within-pillar metric weights.
func DefaultMetricWeights() map[MetricKey]float64 {
	return map[MetricKey]float64{
		MetricEmissionsIntensity: 0.4,
		MetricWaterIntensity:     0.2,
		MetricWasteIntensity:     0.2,
		MetricRenewableShare:     0.2,

		MetricInjuryRate:         0.3,
		MetricTrainingHours:      0.2,
		MetricWageRatio:          0.3,
		MetricWorkforceDiversity: 0.2,

		MetricBoardDiversity:    0.25,
		MetricBoardIndependence: 0.25,
		MetricAntiCorruption:    0.25,
		MetricTransparency:      0.25,
	}
}

// Clone returns a copy that shares no maps with c.
func (c ScoringConfig) Clone() ScoringConfig {
	out := c
	if c.MetricWeights != nil {
		out.MetricWeights = make(map[MetricKey]float64, len(c.MetricWeights))
		for k, v := range c.MetricWeights {
			out.MetricWeights[k] = v
		}
	}
	return out
}

// Inherit fills the sections of c left at their zero value from base, so a
// partial override only changes what it names. The completeness threshold and
// cap are inherited together when both are zero.
func (c ScoringConfig) Inherit(base ScoringConfig) ScoringConfig {
	out := c.Clone()
	if out.PillarWeights == (PillarWeights{}) {
		out.PillarWeights = base.PillarWeights
	}
	if len(out.MetricWeights) == 0 {
		out.MetricWeights = base.Clone().MetricWeights
	}
	if out.Risk == (RiskSettings{}) {
		out.Risk = base.Risk
	}
	if out.Policy == "" {
		out.Policy = base.Policy
	}
	if out.CompletenessThreshold == 0 && out.CompletenessCap == 0 {
		out.CompletenessThreshold = base.CompletenessThreshold
		out.CompletenessCap = base.CompletenessCap
	}
	if out.Normalization == "" {
		out.Normalization = base.Normalization
	}
	return out
}

// MetricWeight returns the configured weight, falling back to the default.
func (c ScoringConfig) MetricWeight(key MetricKey) float64 {
	if w, ok := c.MetricWeights[key]; ok {
		return w
	}
	return DefaultMetricWeights()[key]
}

// Validate rejects values that cannot be scored. Weight sums are not checked:
// pillar and metric weights are renormalized at scoring time.
func (c ScoringConfig) Validate() error {
	for _, w := range []float64{c.PillarWeights.Environmental, c.PillarWeights.Social, c.PillarWeights.Governance} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: pillar weights must be finite and non-negative", ErrInvalidConfig)
		}
	}
	for k, w := range c.MetricWeights {
		if _, ok := LookupMetric(k); !ok {
			return fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, k)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight for %s must be finite and non-negative", ErrInvalidConfig, k)
		}
	}
	switch c.Policy {
	case PolicyRiskFactor, PolicyThresholdPenalty:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, c.Policy)
	}
	switch c.Normalization {
	case NormalizeIndustry, NormalizeGlobal:
	default:
		return fmt.Errorf("%w: unknown normalization mode %q", ErrInvalidConfig, c.Normalization)
	}
	if c.CompletenessThreshold < 0 || c.CompletenessThreshold > 1 {
		return fmt.Errorf("%w: completeness threshold must be within [0,1]", ErrInvalidConfig)
	}
	if c.CompletenessCap < 0 || c.CompletenessCap > 100 {
		return fmt.Errorf("%w: completeness cap must be within [0,100]", ErrInvalidConfig)
	}
	if c.Risk.Lambda < 0 || c.Risk.DefaultFactor < 0 || c.Risk.DefaultFactor > 1 {
		return fmt.Errorf("%w: risk lambda and default factor out of range", ErrInvalidConfig)
	}
	return nil
}

// ProxyValues holds caller-supplied substitutes for undisclosed metrics, keyed by
// industry then metric. Intensity metrics carry intensities, not absolutes.
type ProxyValues map[string]map[MetricKey]float64

// Get returns the proxy for an industry and metric.
func (p ProxyValues) Get(industry string, key MetricKey) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p[industry][key]
	return v, ok
}
