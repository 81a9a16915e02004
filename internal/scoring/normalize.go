// Package scoring implements normalization, pillar aggregation, risk adjustment
// and composite scoring of supplier ESG disclosures.
package scoring

import (
	"math"

	"github.com/opensource-finance/verdant/internal/domain"
)

// Strategy maps a raw value onto the 0-100 scale using a band.
type Strategy interface {
	Scale(v float64, band domain.Band) float64
}

// higherIsBetter scores Min as 0 and Max as 100. Values past the cap add nothing.
type higherIsBetter struct{}

func (higherIsBetter) Scale(v float64, b domain.Band) float64 {
	if b.Max == b.Min {
		return 0
	}
	return clamp((v-b.Min)/(b.Max-b.Min)*100, 0, 100)
}

// lowerIsBetter scores Min as 100 and Max as 0.
type lowerIsBetter struct{}

func (lowerIsBetter) Scale(v float64, b domain.Band) float64 {
	if b.Max == b.Min {
		return 0
	}
	return clamp((b.Max-v)/(b.Max-b.Min)*100, 0, 100)
}

// injuryRate scores zero incidents as 100 and the ceiling (Max) as 0.
type injuryRate struct{}

func (injuryRate) Scale(v float64, b domain.Band) float64 {
	if b.Max == b.Min {
		return 0
	}
	if v <= 0 {
		return 100
	}
	return lowerIsBetter{}.Scale(v, domain.Band{Min: 0, Max: b.Max})
}

// wageRatio scores the minimum ratio (Min) as 0 and the target ratio (Max) as 100.
type wageRatio struct{}

func (wageRatio) Scale(v float64, b domain.Band) float64 {
	if b.Max == b.Min {
		return 0
	}
	if v <= b.Min {
		return 0
	}
	if v >= b.Max {
		return 100
	}
	return higherIsBetter{}.Scale(v, b)
}

// boolean scores any positive value as 100.
type boolean struct{}

func (boolean) Scale(v float64, _ domain.Band) float64 {
	if v > 0 {
		return 100
	}
	return 0
}

var strategies = map[domain.MetricKind]Strategy{
	domain.KindHigherIsBetter: higherIsBetter{},
	domain.KindIntensity:      lowerIsBetter{},
	domain.KindInjuryRate:     injuryRate{},
	domain.KindWageRatio:      wageRatio{},
	domain.KindBoolean:        boolean{},
}

// StrategyFor returns the normalization strategy of a metric kind.
func StrategyFor(kind domain.MetricKind) Strategy {
	if s, ok := strategies[kind]; ok {
		return s
	}
	return higherIsBetter{}
}

// Normalize scales one value. A nil, NaN or infinite value stays unknown (nil).
func Normalize(value *float64, kind domain.MetricKind, band domain.Band) *float64 {
	if !finite(value) {
		return nil
	}
	v := StrategyFor(kind).Scale(*value, band)
	return &v
}

// RawValue extracts the value a metric is normalized from. Intensity metrics
// divide the absolute quantity by revenue and are unknown when revenue is
// missing or not positive. The anti-corruption flag becomes 1 or 0.
func RawValue(rec *domain.SupplierRecord, key domain.MetricKey) *float64 {
	switch key {
	case domain.MetricEmissionsIntensity:
		return Intensity(rec.Emissions, rec.Revenue)
	case domain.MetricWaterIntensity:
		return Intensity(rec.WaterUse, rec.Revenue)
	case domain.MetricWasteIntensity:
		return Intensity(rec.Waste, rec.Revenue)
	case domain.MetricRenewableShare:
		return finiteOrNil(rec.RenewableShare)
	case domain.MetricInjuryRate:
		return finiteOrNil(rec.InjuryRate)
	case domain.MetricTrainingHours:
		return finiteOrNil(rec.TrainingHours)
	case domain.MetricWageRatio:
		return finiteOrNil(rec.WageRatio)
	case domain.MetricWorkforceDiversity:
		return finiteOrNil(rec.WorkforceDiversity)
	case domain.MetricBoardDiversity:
		return finiteOrNil(rec.BoardDiversity)
	case domain.MetricBoardIndependence:
		return finiteOrNil(rec.BoardIndependence)
	case domain.MetricAntiCorruption:
		if rec.AntiCorruptionPolicy == nil {
			return nil
		}
		if *rec.AntiCorruptionPolicy {
			return domain.Float(1)
		}
		return domain.Float(0)
	case domain.MetricTransparency:
		return finiteOrNil(rec.TransparencyScore)
	}
	return nil
}

// Intensity returns absolute / revenue, or nil when it cannot be derived.
func Intensity(absolute, revenue *float64) *float64 {
	if !finite(absolute) || !finite(revenue) || *revenue <= 0 {
		return nil
	}
	v := *absolute / *revenue
	return &v
}

// NormalizeRecord normalizes every metric of a supplier. Missing values are
// replaced by the caller's industry proxy when one is given; otherwise they
// stay nil and drop out of aggregation.
func NormalizeRecord(rec *domain.SupplierRecord, cfg domain.ScoringConfig, bands *domain.ReferenceBands, proxies domain.ProxyValues) (map[domain.MetricKey]domain.MetricScore, error) {
	if bands.Empty() {
		return nil, domain.ErrNoBands
	}

	out := make(map[domain.MetricKey]domain.MetricScore, len(domain.Metrics))
	for _, spec := range domain.Metrics {
		ms := domain.MetricScore{
			Raw:    RawValue(rec, spec.Key),
			Weight: cfg.MetricWeight(spec.Key),
		}

		input := ms.Raw
		if input == nil {
			if p, ok := proxies.Get(rec.Industry, spec.Key); ok && !math.IsNaN(p) && !math.IsInf(p, 0) {
				input = &p
				ms.Proxied = true
			}
		}

		if input != nil {
			if spec.Kind == domain.KindBoolean {
				ms.Normalized = Normalize(input, spec.Kind, domain.Band{})
			} else if band, ok := bands.Lookup(rec.Industry, spec.Key, cfg.Normalization); ok {
				ms.Normalized = Normalize(input, spec.Kind, band)
			}
		}
		out[spec.Key] = ms
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func finiteOrNil(v *float64) *float64 {
	if !finite(v) {
		return nil
	}
	c := *v
	return &c
}
