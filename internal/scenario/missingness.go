package scenario

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/impute"
)

// DefaultRates are the MCAR masking probabilities.
var DefaultRates = []float64{0.05, 0.10}

// DefaultImputations are the strategies compared after masking.
var DefaultImputations = []domain.ImputationMethod{domain.ImputeIndustryMean, domain.ImputeKNN}

// DefaultMaskFields are the non-critical numeric fields eligible for masking.
var DefaultMaskFields = []domain.Field{
	domain.FieldWaterUse,
	domain.FieldWaste,
	domain.FieldRenewableShare,
	domain.FieldTrainingHours,
	domain.FieldWorkforceDiversity,
	domain.FieldBoardDiversity,
}

// DefaultTopK is the preservation depth reported by S3.
const DefaultTopK = 3

// MaskedCell identifies one value removed by InjectMCAR.
type MaskedCell = impute.Cell

// NewMaskRand returns the generator for one (seed, rate, imputation) cell so
// every combination draws an independent, reproducible mask.
func NewMaskRand(seed uint64, rate float64, method domain.ImputationMethod) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(method))
	return rand.New(rand.NewPCG(seed, math.Float64bits(rate)^h.Sum64()))
}

// InjectMCAR removes each disclosed field with probability rate. One draw is
// taken per (record, field) cell in order, disclosed or not, so the mask does
// not depend on which values were present.
func InjectMCAR(records []*domain.SupplierRecord, fields []domain.Field, rate float64, rng *rand.Rand) []MaskedCell {
	var masked []MaskedCell
	for _, rec := range records {
		for _, f := range fields {
			hit := rng.Float64() < rate
			if hit && rec.Get(f) != nil {
				rec.Set(f, nil)
				masked = append(masked, MaskedCell{SupplierID: rec.ID, Field: f})
			}
		}
	}
	return masked
}

// Impute fills the masked cells using the named method. Values the supplier
// never disclosed stay unknown.
func Impute(records []*domain.SupplierRecord, fields []domain.Field, cells []MaskedCell, method domain.ImputationMethod, k int) (int, error) {
	switch method {
	case domain.ImputeIndustryMean:
		return impute.IndustryMean(records, fields, cells), nil
	case domain.ImputeKNN:
		return impute.KNN(records, fields, cells, k), nil
	}
	return 0, fmt.Errorf("unknown imputation method %q", method)
}

func (r *Runner) runMissingness(ctx context.Context, pop []*domain.SupplierRecord, cfg domain.ScoringConfig, baseline []*domain.ScoreBreakdown, req Request) ([]domain.ScenarioVariant, error) {
	p := req.Parameters
	rates := p.Rates
	if len(rates) == 0 {
		rates = DefaultRates
	}
	methods := p.Imputations
	if len(methods) == 0 {
		methods = DefaultImputations
	}
	fields := p.Fields
	if len(fields) == 0 {
		fields = DefaultMaskFields
	}
	topK := p.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	k := p.Neighbors
	if k <= 0 {
		k = impute.DefaultNeighbors
	}

	type combo struct {
		rate   float64
		method domain.ImputationMethod
	}
	combos := make([]combo, 0, len(rates)*len(methods))
	for _, rate := range rates {
		for _, m := range methods {
			combos = append(combos, combo{rate: rate, method: m})
		}
	}

	variants := make([]domain.ScenarioVariant, len(combos))
	err := r.forEach(ctx, len(combos), func(ctx context.Context, i int) error {
		c := combos[i]
		masked := domain.ClonePopulation(pop)
		cells := InjectMCAR(masked, fields, c.rate, NewMaskRand(req.Seed, c.rate, c.method))
		if _, err := Impute(masked, fields, cells, c.method, k); err != nil {
			return err
		}

		rows, err := r.score(ctx, masked, cfg, req)
		if err != nil {
			return fmt.Errorf("score %s at %.2f: %w", c.method, c.rate, err)
		}

		label := fmt.Sprintf("%s p=%.0f%%", c.method, c.rate*100)
		rate := c.rate
		variants[i] = domain.ScenarioVariant{
			Label:       label,
			Rate:        &rate,
			Imputation:  c.method,
			MaskedCells: len(cells),
			Table:       domain.RankedTable{Label: label, Rows: rows},
			Comparison:  Compare(baseline, rows, topK),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return variants, nil
}
