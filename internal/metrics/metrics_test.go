package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveScenario(t *testing.T) {
	before := testutil.ToFloat64(ScenarioRuns.WithLabelValues("missingness", "completed"))

	ObserveScenario("missingness", "completed", 120*time.Millisecond)

	after := testutil.ToFloat64(ScenarioRuns.WithLabelValues("missingness", "completed"))
	assert.Equal(t, before+1, after)
}

func TestObserveScore(t *testing.T) {
	before := testutil.ToFloat64(SuppliersScored)

	ObserveScore(25, 10*time.Millisecond)

	assert.Equal(t, before+25, testutil.ToFloat64(SuppliersScored))
}
