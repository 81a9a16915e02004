package domain

import "time"

// MetricScore is the normalization outcome of one metric.
type MetricScore struct {
	Raw        *float64 `json:"raw"`
	Normalized *float64 `json:"normalized"`
	Proxied    bool     `json:"proxied,omitempty"`
	Weight     float64  `json:"weight"`
}

// ScoreBreakdown is the full scoring result for one supplier.
type ScoreBreakdown struct {
	SupplierID string `json:"supplierId"`
	Name       string `json:"name"`
	Industry   string `json:"industry"`
	Country    string `json:"country"`

	Metrics map[MetricKey]MetricScore `json:"metrics"`

	Environmental float64 `json:"environmental"`
	Social        float64 `json:"social"`
	Governance    float64 `json:"governance"`

	CompositeNoRisk float64 `json:"compositeNoRisk"`

	// RiskPenalty is nil when the penalty does not apply (disabled or other policy).
	RiskPenalty *float64 `json:"riskPenalty"`
	// RiskFactor is nil unless the risk-factor policy is in effect.
	RiskFactor *float64 `json:"riskFactor"`

	FinalScore   float64          `json:"finalScore"`
	Completeness float64          `json:"completeness"`
	Capped       bool             `json:"capped"`
	Policy       FinalScorePolicy `json:"policy"`
	Rank         int              `json:"rank"`
	Flags        []string         `json:"flags,omitempty"`
}

// Pillar returns the score of one pillar.
func (b *ScoreBreakdown) Pillar(p Pillar) float64 {
	switch p {
	case PillarEnvironmental:
		return b.Environmental
	case PillarSocial:
		return b.Social
	case PillarGovernance:
		return b.Governance
	}
	return 0
}

// RankMap returns supplier ID to rank.
func RankMap(rows []*ScoreBreakdown) map[string]int {
	m := make(map[string]int, len(rows))
	for _, r := range rows {
		m[r.SupplierID] = r.Rank
	}
	return m
}

// ScoreMap returns supplier ID to final score.
func ScoreMap(rows []*ScoreBreakdown) map[string]float64 {
	m := make(map[string]float64, len(rows))
	for _, r := range rows {
		m[r.SupplierID] = r.FinalScore
	}
	return m
}

// RankedTable is a labelled, rank-ordered list of breakdowns.
type RankedTable struct {
	Label string            `json:"label"`
	Rows  []*ScoreBreakdown `json:"rows"`
}

// IDs returns supplier IDs in table order.
func (t *RankedTable) IDs() []string {
	ids := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		ids[i] = r.SupplierID
	}
	return ids
}

// TraceStep is one named stage of a calculation trace.
type TraceStep struct {
	Stage   string         `json:"stage"`
	Values  map[string]any `json:"values"`
	Summary string         `json:"summary"`
}

// CalculationTrace is the persisted audit trail for one supplier score.
type CalculationTrace struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenantId"`
	SupplierID string      `json:"supplierId"`
	RunID      string      `json:"runId"`
	FinalScore float64     `json:"finalScore"`
	Steps      []TraceStep `json:"steps"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// ScoreRun is a scored and screened population returned by the scoring endpoint.
type ScoreRun struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenantId"`
	Table    RankedTable    `json:"table"`
	Screens  []ScreenResult `json:"screens,omitempty"`
	Metadata RunMetadata    `json:"metadata"`
}

// RunMetadata contains processing information for a scoring or scenario run.
type RunMetadata struct {
	TraceID          string    `json:"traceId,omitempty"`
	BandsVersion     string    `json:"bandsVersion,omitempty"`
	Suppliers        int       `json:"suppliers"`
	ScreensEvaluated int       `json:"screensEvaluated"`
	Flagged          int       `json:"flagged"`
	ScoringMs        int64     `json:"scoringMs"`
	TotalMs          int64     `json:"totalMs"`
	EngineVersion    string    `json:"engineVersion"`
	CompletedAt      time.Time `json:"completedAt"`
}
