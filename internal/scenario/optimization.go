package scenario

import (
	"math"
	"sort"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/scoring"
)

const (
	// DefaultMarginThreshold is the minimum margin (percent) the S1 constraint requires.
	DefaultMarginThreshold = 10.0

	// DefaultMargin is the floor assigned when no margin can be resolved.
	DefaultMargin = 0.0
)

// Constraint skip reasons.
const (
	ReasonNoQualifying = "no supplier has an actual or derived margin"
	ReasonExcludesNone = "margin constraint would exclude no qualifying supplier"
	ReasonExcludesAll  = "margin constraint would exclude every qualifying supplier"
)

// ResolveMargin returns the supplier's margin in percent and where it came from:
// the disclosed margin, else (revenue − cost) / revenue when revenue is
// positive and 0 ≤ cost ≤ revenue, else the default floor.
func ResolveMargin(rec *domain.SupplierRecord, defaultMargin float64) (float64, domain.MarginSource) {
	if isFinite(rec.Margin) {
		return *rec.Margin, domain.MarginActual
	}
	if isFinite(rec.Revenue) && isFinite(rec.Cost) {
		rev, cost := *rec.Revenue, *rec.Cost
		if rev > 0 && cost >= 0 && cost <= rev {
			return (rev - cost) / rev * 100, domain.MarginDerived
		}
	}
	return defaultMargin, domain.MarginDefault
}

// Optimize ranks suppliers by ascending emission intensity subject to the
// margin constraint. The constraint only judges suppliers with an actual or
// derived margin, and is skipped (and flagged) when it would exclude none or
// all of them. Missing intensities take their industry mean; those still
// missing sort last and report as nil.
func Optimize(pop []*domain.SupplierRecord, baseline []*domain.ScoreBreakdown, params domain.ScenarioParameters) *domain.OptimizationSummary {
	threshold := DefaultMarginThreshold
	if params.MarginThreshold != nil {
		threshold = *params.MarginThreshold
	}
	floor := DefaultMargin
	if params.DefaultMargin != nil {
		floor = *params.DefaultMargin
	}

	scores := domain.ScoreMap(baseline)
	industryMean := meanIntensityByIndustry(pop)

	type candidate struct {
		row       domain.OptimizationRow
		intensity float64
		passes    bool
		qualifies bool
	}

	cands := make([]candidate, 0, len(pop))
	qualifying, passing := 0, 0
	for _, rec := range pop {
		margin, src := ResolveMargin(rec, floor)
		c := candidate{
			row: domain.OptimizationRow{
				SupplierID:   rec.ID,
				Name:         rec.Name,
				Industry:     rec.Industry,
				Margin:       margin,
				MarginSource: src,
				FinalScore:   scores[rec.ID],
			},
			intensity: math.Inf(1),
			qualifies: src != domain.MarginDefault,
		}
		c.passes = margin >= threshold
		if c.qualifies {
			qualifying++
			if c.passes {
				passing++
			}
		}

		if v := scoring.Intensity(rec.Emissions, rec.Revenue); v != nil {
			c.intensity = *v
		} else if m, ok := industryMean[rec.Industry]; ok {
			c.intensity = m
			c.row.IntensityImputed = true
		}
		cands = append(cands, c)
	}

	sum := &domain.OptimizationSummary{MarginThreshold: threshold, Qualifying: qualifying}
	switch {
	case qualifying == 0:
		sum.ConstraintReason = ReasonNoQualifying
	case passing == qualifying:
		sum.ConstraintReason = ReasonExcludesNone
	case passing == 0:
		sum.ConstraintReason = ReasonExcludesAll
	default:
		sum.ConstraintApplied = true
	}

	ranked := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if sum.ConstraintApplied && c.qualifies && !c.passes {
			sum.Excluded = append(sum.Excluded, c.row.SupplierID)
			continue
		}
		ranked = append(ranked, c)
	}
	sort.Strings(sum.Excluded)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.intensity != b.intensity {
			return a.intensity < b.intensity
		}
		if a.row.FinalScore != b.row.FinalScore {
			return a.row.FinalScore > b.row.FinalScore
		}
		return a.row.SupplierID < b.row.SupplierID
	})

	total, n := 0.0, 0
	sum.Rows = make([]domain.OptimizationRow, len(ranked))
	for i, c := range ranked {
		row := c.row
		row.Rank = i + 1
		if !math.IsInf(c.intensity, 1) {
			v := c.intensity
			row.EmissionIntensity = &v
			total += v
			n++
		}
		sum.Rows[i] = row
	}
	if n > 0 {
		obj := total / float64(n)
		sum.Objective = &obj
	}
	return sum
}

// meanIntensityByIndustry averages the emission intensities that can be derived.
func meanIntensityByIndustry(pop []*domain.SupplierRecord) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range pop {
		if v := scoring.Intensity(rec.Emissions, rec.Revenue); v != nil {
			sums[rec.Industry] += *v
			counts[rec.Industry]++
		}
	}
	out := make(map[string]float64, len(sums))
	for k, s := range sums {
		out[k] = s / float64(counts[k])
	}
	return out
}

func isFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
