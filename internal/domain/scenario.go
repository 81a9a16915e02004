package domain

import (
	"fmt"
	"strings"
	"time"
)

// ScenarioKind names one of the four what-if experiments.
type ScenarioKind string

const (
	ScenarioOptimization          ScenarioKind = "optimization"           // S1
	ScenarioWeightSensitivity     ScenarioKind = "weight_sensitivity"     // S2
	ScenarioMissingness           ScenarioKind = "missingness"            // S3
	ScenarioNormalizationAblation ScenarioKind = "normalization_ablation" // S4
)

// ParseScenarioKind accepts the kind name or its short alias (s1..s4).
func ParseScenarioKind(s string) (ScenarioKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s1", string(ScenarioOptimization):
		return ScenarioOptimization, nil
	case "s2", string(ScenarioWeightSensitivity):
		return ScenarioWeightSensitivity, nil
	case "s3", string(ScenarioMissingness):
		return ScenarioMissingness, nil
	case "s4", string(ScenarioNormalizationAblation):
		return ScenarioNormalizationAblation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScenario, s)
}

// ImputationMethod selects how masked values are filled back in.
type ImputationMethod string

const (
	ImputeIndustryMean ImputationMethod = "industry_mean"
	ImputeKNN          ImputationMethod = "knn"
)

// MarginSource records where an S1 margin came from.
type MarginSource string

const (
	MarginActual  MarginSource = "actual"
	MarginDerived MarginSource = "derived"
	MarginDefault MarginSource = "default"
)

// ScenarioParameters tunes a scenario. Zero values select the defaults.
type ScenarioParameters struct {
	// S1
	MarginThreshold *float64 `json:"marginThreshold,omitempty"`
	DefaultMargin   *float64 `json:"defaultMargin,omitempty"`

	// S2
	Pillar  Pillar    `json:"pillar,omitempty"`
	Factors []float64 `json:"factors,omitempty"`

	// S3
	Rates       []float64          `json:"rates,omitempty"`
	Imputations []ImputationMethod `json:"imputations,omitempty"`
	Fields      []Field            `json:"fields,omitempty"`
	Neighbors   int                `json:"neighbors,omitempty"`
	TopK        int                `json:"topK,omitempty"`
}

// ScenarioRequest is a complete, self-contained scenario invocation.
type ScenarioRequest struct {
	RunID      string             `json:"runId,omitempty"`
	TenantID   string             `json:"tenantId,omitempty"`
	Kind       ScenarioKind       `json:"kind"`
	Config     *ScoringConfig     `json:"config,omitempty"`
	Seed       *uint64            `json:"seed,omitempty"`
	UseProxies bool               `json:"useProxies,omitempty"`
	Parameters ScenarioParameters `json:"parameters"`
}

// Comparison holds the statistics of one table against the baseline.
type Comparison struct {
	KendallTau       *float64 `json:"kendallTau"`
	MeanRankShift    float64  `json:"meanRankShift"`
	MaxRankShift     float64  `json:"maxRankShift"`
	MAE              *float64 `json:"mae"`
	TopK             int      `json:"topK,omitempty"`
	TopKPreservation *float64 `json:"topKPreservation,omitempty"`
	Matched          int      `json:"matched"`
}

// ScenarioVariant is one perturbed table with its comparison to the baseline.
type ScenarioVariant struct {
	Label         string            `json:"label"`
	Factor        *float64          `json:"factor,omitempty"`
	PillarWeights *PillarWeights    `json:"pillarWeights,omitempty"`
	Rate          *float64          `json:"rate,omitempty"`
	Imputation    ImputationMethod  `json:"imputation,omitempty"`
	MaskedCells   int               `json:"maskedCells,omitempty"`
	Normalization NormalizationMode `json:"normalization,omitempty"`
	Table         RankedTable       `json:"table"`
	Comparison    Comparison        `json:"comparison"`
}

// OptimizationRow is one supplier in the S1 ordering.
type OptimizationRow struct {
	Rank              int          `json:"rank"`
	SupplierID        string       `json:"supplierId"`
	Name              string       `json:"name"`
	Industry          string       `json:"industry"`
	EmissionIntensity *float64     `json:"emissionIntensity"`
	IntensityImputed  bool         `json:"intensityImputed,omitempty"`
	Margin            float64      `json:"margin"`
	MarginSource      MarginSource `json:"marginSource"`
	FinalScore        float64      `json:"finalScore"`
}

// OptimizationSummary is the S1 outcome.
type OptimizationSummary struct {
	MarginThreshold   float64           `json:"marginThreshold"`
	ConstraintApplied bool              `json:"constraintApplied"`
	ConstraintReason  string            `json:"constraintReason,omitempty"`
	Qualifying        int               `json:"qualifying"`
	Excluded          []string          `json:"excluded,omitempty"`
	Objective         *float64          `json:"objective"`
	Rows              []OptimizationRow `json:"rows"`
}

// DisparitySummary is the S4 per-industry score difference.
type DisparitySummary struct {
	ByIndustry map[string]float64 `json:"byIndustry"`
	Max        float64            `json:"max"`
	Mean       float64            `json:"mean"`
}

// ScenarioResult is everything one scenario run produced.
type ScenarioResult struct {
	ID           string               `json:"id"`
	TenantID     string               `json:"tenantId,omitempty"`
	Kind         ScenarioKind         `json:"kind"`
	Seed         *uint64              `json:"seed,omitempty"`
	Baseline     RankedTable          `json:"baseline"`
	Variants     []ScenarioVariant    `json:"variants,omitempty"`
	Optimization *OptimizationSummary `json:"optimization,omitempty"`
	Disparity    *DisparitySummary    `json:"disparity,omitempty"`
	DurationMs   int64                `json:"durationMs"`
	CompletedAt  time.Time            `json:"completedAt"`
}

// RunStatus is the lifecycle state of a stored scenario run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ScenarioRun is the persisted envelope of a scenario request and its result.
type ScenarioRun struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Kind        ScenarioKind    `json:"kind"`
	Status      RunStatus       `json:"status"`
	Request     ScenarioRequest `json:"request"`
	Result      *ScenarioResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}
