package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKendallTau(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		r := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
		tau, ok := KendallTau(r, r)
		require.True(t, ok)
		assert.InDelta(t, 1.0, tau, 1e-12)
	})

	t.Run("reversed", func(t *testing.T) {
		a := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
		b := map[string]int{"a": 4, "b": 3, "c": 2, "d": 1}
		tau, ok := KendallTau(a, b)
		require.True(t, ok)
		assert.InDelta(t, -1.0, tau, 1e-12)
	})

	t.Run("one swap", func(t *testing.T) {
		a := map[string]int{"a": 1, "b": 2, "c": 3}
		b := map[string]int{"a": 2, "b": 1, "c": 3}
		tau, ok := KendallTau(a, b)
		require.True(t, ok)
		// 2 concordant, 1 discordant over 3 pairs
		assert.InDelta(t, 1.0/3, tau, 1e-12)
	})

	t.Run("only common ids", func(t *testing.T) {
		a := map[string]int{"a": 1, "b": 2, "x": 3}
		b := map[string]int{"a": 1, "b": 2, "y": 3}
		tau, ok := KendallTau(a, b)
		require.True(t, ok)
		assert.InDelta(t, 1.0, tau, 1e-12)
	})

	t.Run("too few", func(t *testing.T) {
		_, ok := KendallTau(map[string]int{"a": 1}, map[string]int{"a": 1})
		assert.False(t, ok)
	})
}

func TestRankShift(t *testing.T) {
	a := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
	b := map[string]int{"a": 3, "b": 2, "c": 1, "d": 4}
	mean, max, n := RankShift(a, b)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 1.0, mean, 1e-12)
	assert.InDelta(t, 2.0, max, 1e-12)

	_, _, n = RankShift(a, map[string]int{"z": 1})
	assert.Zero(t, n)
}

func TestTopKPreservation(t *testing.T) {
	base := []string{"a", "b", "c", "d", "e"}

	got, ok := TopKPreservation(base, []string{"b", "a", "d", "c", "e"}, 3)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3, got, 1e-12)

	got, ok = TopKPreservation(base, base, 3)
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	got, ok = TopKPreservation([]string{"a", "b"}, []string{"b", "a"}, 3)
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	_, ok = TopKPreservation(nil, base, 3)
	assert.False(t, ok)
}

func TestMAE(t *testing.T) {
	a := map[string]float64{"a": 10, "b": 20, "c": 30}
	b := map[string]float64{"a": 12, "b": 17, "z": 99}
	got, ok := MAE(a, b)
	require.True(t, ok)
	assert.InDelta(t, 2.5, got, 1e-12)

	_, ok = MAE(a, map[string]float64{})
	assert.False(t, ok)
}

func TestDisparity(t *testing.T) {
	groups := map[string]string{"a": "Energy", "b": "Energy", "c": "Retail"}
	a := map[string]float64{"a": 50, "b": 60, "c": 70}
	b := map[string]float64{"a": 40, "b": 64, "c": 69}

	byGroup, max, mean := Disparity(groups, a, b)
	require.Len(t, byGroup, 2)
	assert.InDelta(t, 7.0, byGroup["Energy"], 1e-12)
	assert.InDelta(t, 1.0, byGroup["Retail"], 1e-12)
	assert.InDelta(t, 7.0, max, 1e-12)
	assert.InDelta(t, 4.0, mean, 1e-12)
}
