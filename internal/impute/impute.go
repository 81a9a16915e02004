// Package impute fills removed numeric fields of a supplier population.
// Both strategies write into the records they are given; callers pass copies.
// Only the listed cells are filled, so genuine non-disclosure stays unknown.
package impute

import (
	"math"
	"sort"

	"github.com/opensource-finance/verdant/internal/domain"
)

// DefaultNeighbors is k for nearest-neighbor imputation.
const DefaultNeighbors = 5

// Cell identifies one field of one supplier.
type Cell struct {
	SupplierID string
	Field      domain.Field
}

// Means holds observed field means per industry and over the whole population.
type Means struct {
	ByIndustry map[string]map[domain.Field]float64
	Overall    map[domain.Field]float64
}

// ObservedMeans computes means from the non-nil, finite values only.
func ObservedMeans(records []*domain.SupplierRecord, fields []domain.Field) Means {
	type acc struct {
		sum float64
		n   int
	}
	ind := make(map[string]map[domain.Field]*acc)
	all := make(map[domain.Field]*acc)

	for _, r := range records {
		for _, f := range fields {
			v := r.Get(f)
			if v == nil || !finite(*v) {
				continue
			}
			if ind[r.Industry] == nil {
				ind[r.Industry] = make(map[domain.Field]*acc)
			}
			if ind[r.Industry][f] == nil {
				ind[r.Industry][f] = &acc{}
			}
			ind[r.Industry][f].sum += *v
			ind[r.Industry][f].n++
			if all[f] == nil {
				all[f] = &acc{}
			}
			all[f].sum += *v
			all[f].n++
		}
	}

	m := Means{
		ByIndustry: make(map[string]map[domain.Field]float64, len(ind)),
		Overall:    make(map[domain.Field]float64, len(all)),
	}
	for industry, fs := range ind {
		m.ByIndustry[industry] = make(map[domain.Field]float64, len(fs))
		for f, a := range fs {
			m.ByIndustry[industry][f] = a.sum / float64(a.n)
		}
	}
	for f, a := range all {
		m.Overall[f] = a.sum / float64(a.n)
	}
	return m
}

// Lookup returns the industry mean, falling back to the population mean.
func (m Means) Lookup(industry string, f domain.Field) (float64, bool) {
	if v, ok := m.ByIndustry[industry][f]; ok {
		return v, true
	}
	v, ok := m.Overall[f]
	return v, ok
}

// IndustryMean fills each listed cell with the mean of the observed values in
// the same industry (or the population when the industry has none). Cells that
// already hold a value are left alone. It returns the number of cells filled.
func IndustryMean(records []*domain.SupplierRecord, fields []domain.Field, cells []Cell) int {
	means := ObservedMeans(records, fields)
	byID := indexByID(records)
	filled := 0
	for _, c := range cells {
		i, ok := byID[c.SupplierID]
		if !ok {
			continue
		}
		r := records[i]
		if r.Get(c.Field) != nil {
			continue
		}
		if v, ok := means.Lookup(r.Industry, c.Field); ok {
			r.Set(c.Field, domain.Float(v))
			filled++
		}
	}
	return filled
}

// KNN fills each listed cell with the mean of that field over the k nearest
// suppliers that disclosed it. Features are the same fields scaled to
// [0,1] by their observed range; distance is Euclidean over the features both
// suppliers disclosed, averaged per shared feature. Suppliers with no usable
// neighbor fall back to the industry mean. It returns the number of cells filled.
func KNN(records []*domain.SupplierRecord, fields []domain.Field, cells []Cell, k int) int {
	if k <= 0 {
		k = DefaultNeighbors
	}

	// Snapshot observed values so imputed cells never feed other imputations.
	observed := make([]map[domain.Field]float64, len(records))
	for i, r := range records {
		observed[i] = make(map[domain.Field]float64, len(fields))
		for _, f := range fields {
			if v := r.Get(f); v != nil && finite(*v) {
				observed[i][f] = *v
			}
		}
	}
	scaled := scaleFeatures(observed, fields)
	means := ObservedMeans(records, fields)

	type neighbor struct {
		idx  int
		dist float64
	}

	byID := indexByID(records)
	filled := 0
	for _, c := range cells {
		i, ok := byID[c.SupplierID]
		if !ok {
			continue
		}
		r, f := records[i], c.Field
		if r.Get(f) != nil {
			continue
		}

		var cands []neighbor
		for j := range records {
			if j == i {
				continue
			}
			if _, ok := observed[j][f]; !ok {
				continue
			}
			if d, ok := distance(scaled[i], scaled[j], fields); ok {
				cands = append(cands, neighbor{idx: j, dist: d})
			}
		}

		if len(cands) == 0 {
			if v, ok := means.Lookup(r.Industry, f); ok {
				r.Set(f, domain.Float(v))
				filled++
			}
			continue
		}

		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return records[cands[a].idx].ID < records[cands[b].idx].ID
		})
		if len(cands) > k {
			cands = cands[:k]
		}
		sum := 0.0
		for _, n := range cands {
			sum += observed[n.idx][f]
		}
		r.Set(f, domain.Float(sum/float64(len(cands))))
		filled++
	}
	return filled
}

// scaleFeatures min-max scales each field over the observed values.
// A field with zero range maps to 0 for every supplier.
func scaleFeatures(observed []map[domain.Field]float64, fields []domain.Field) []map[domain.Field]float64 {
	lo := make(map[domain.Field]float64, len(fields))
	hi := make(map[domain.Field]float64, len(fields))
	for _, f := range fields {
		lo[f], hi[f] = math.Inf(1), math.Inf(-1)
	}
	for _, obs := range observed {
		for f, v := range obs {
			lo[f] = math.Min(lo[f], v)
			hi[f] = math.Max(hi[f], v)
		}
	}

	out := make([]map[domain.Field]float64, len(observed))
	for i, obs := range observed {
		out[i] = make(map[domain.Field]float64, len(obs))
		for f, v := range obs {
			if span := hi[f] - lo[f]; span > 0 {
				out[i][f] = (v - lo[f]) / span
			} else {
				out[i][f] = 0
			}
		}
	}
	return out
}

// distance is the root mean squared difference over shared features.
func distance(a, b map[domain.Field]float64, fields []domain.Field) (float64, bool) {
	sum := 0.0
	n := 0
	for _, f := range fields {
		va, okA := a[f]
		vb, okB := b[f]
		if !okA || !okB {
			continue
		}
		d := va - vb
		sum += d * d
		n++
	}
	if n == 0 {
		return 0, false
	}
	return math.Sqrt(sum / float64(n)), true
}

func indexByID(records []*domain.SupplierRecord) map[string]int {
	byID := make(map[string]int, len(records))
	for i, r := range records {
		byID[r.ID] = i
	}
	return byID
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
