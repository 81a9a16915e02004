// Package stats compares two scored orderings of the same suppliers.
package stats

import (
	"math"
	"sort"
)

// KendallTau returns τ-a between two rank assignments over their common IDs.
// Pairs tied in either ranking count as neither concordant nor discordant.
// ok is false when fewer than two IDs are shared.
func KendallTau(a, b map[string]int) (tau float64, ok bool) {
	ids := commonIDs(a, b)
	n := len(ids)
	if n < 2 {
		return 0, false
	}

	var concordant, discordant int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			da := a[ids[i]] - a[ids[j]]
			db := b[ids[i]] - b[ids[j]]
			switch s := sign(da) * sign(db); {
			case s > 0:
				concordant++
			case s < 0:
				discordant++
			}
		}
	}

	pairs := float64(n*(n-1)) / 2
	return float64(concordant-discordant) / pairs, true
}

// RankShift returns the mean and max absolute rank difference over common IDs.
func RankShift(a, b map[string]int) (mean, max float64, n int) {
	ids := commonIDs(a, b)
	if len(ids) == 0 {
		return 0, 0, 0
	}
	sum := 0.0
	for _, id := range ids {
		d := math.Abs(float64(a[id] - b[id]))
		sum += d
		if d > max {
			max = d
		}
	}
	return sum / float64(len(ids)), max, len(ids)
}

// TopKPreservation is the share of the first k IDs of base that also appear in
// the first k IDs of other. ok is false when k or base is empty.
func TopKPreservation(base, other []string, k int) (float64, bool) {
	if k <= 0 || len(base) == 0 {
		return 0, false
	}
	top := base[:min(k, len(base))]
	cmp := make(map[string]struct{}, k)
	for _, id := range other[:min(k, len(other))] {
		cmp[id] = struct{}{}
	}
	kept := 0
	for _, id := range top {
		if _, ok := cmp[id]; ok {
			kept++
		}
	}
	return float64(kept) / float64(len(top)), true
}

// MAE is the mean absolute difference over common IDs. Non-finite values
// are skipped. ok is false when nothing matches.
func MAE(a, b map[string]float64) (float64, bool) {
	sum := 0.0
	n := 0
	for id, va := range a {
		vb, ok := b[id]
		if !ok || !isFinite(va) || !isFinite(vb) {
			continue
		}
		sum += math.Abs(va - vb)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Disparity groups IDs (groups maps ID to group) and returns, per group, the
// mean absolute difference between a and b, plus the largest and the mean of
// those group values.
func Disparity(groups map[string]string, a, b map[string]float64) (byGroup map[string]float64, max, mean float64) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for id, g := range groups {
		va, okA := a[id]
		vb, okB := b[id]
		if !okA || !okB || !isFinite(va) || !isFinite(vb) {
			continue
		}
		sums[g] += math.Abs(va - vb)
		counts[g]++
	}

	byGroup = make(map[string]float64, len(sums))
	names := make([]string, 0, len(sums))
	for g := range sums {
		names = append(names, g)
	}
	sort.Strings(names)

	total := 0.0
	for _, g := range names {
		v := sums[g] / float64(counts[g])
		byGroup[g] = v
		total += v
		if v > max {
			max = v
		}
	}
	if len(names) > 0 {
		mean = total / float64(len(names))
	}
	return byGroup, max, mean
}

func commonIDs(a, b map[string]int) []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
