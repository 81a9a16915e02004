// Package ranking assembles scored and screened suppliers into a ranked run.
package ranking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/scoring"
)

// EngineVersion is stamped into run metadata.
const EngineVersion = "verdant-1.0"

// Processor turns breakdowns and screen results into a ScoreRun.
type Processor struct {
	// Label given to the ranked table
	TableLabel string
}

// NewProcessor creates a new processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		TableLabel: "baseline",
	}
}

// RunInput contains all data needed to assemble a run.
type RunInput struct {
	TenantID     string
	TraceID      string
	BandsVersion string
	Rows         []*domain.ScoreBreakdown
	Screens      []domain.ScreenResult
	ScoringMs    int64
	StartTime    time.Time
}

// Process ranks the rows and produces the run.
func (p *Processor) Process(ctx context.Context, input *RunInput) *domain.ScoreRun {
	rows := input.Rows
	if rows == nil {
		rows = []*domain.ScoreBreakdown{}
	}
	scoring.AssignRanks(rows)

	run := &domain.ScoreRun{
		ID:       uuid.New().String(),
		TenantID: input.TenantID,
		Table:    domain.RankedTable{Label: p.TableLabel, Rows: rows},
		Screens:  input.Screens,
	}

	screened := make(map[string]struct{})
	for _, r := range input.Screens {
		screened[r.ScreenID] = struct{}{}
	}

	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	run.Metadata = domain.RunMetadata{
		TraceID:          input.TraceID,
		BandsVersion:     input.BandsVersion,
		Suppliers:        len(rows),
		ScreensEvaluated: len(screened),
		Flagged:          len(Flagged(run)),
		ScoringMs:        input.ScoringMs,
		TotalMs:          time.Since(start).Milliseconds(),
		EngineVersion:    EngineVersion,
		CompletedAt:      time.Now().UTC(),
	}

	return run
}

// Traces builds one calculation trace per row of a run.
func Traces(run *domain.ScoreRun) []*domain.CalculationTrace {
	now := time.Now().UTC()
	traces := make([]*domain.CalculationTrace, len(run.Table.Rows))
	for i, row := range run.Table.Rows {
		traces[i] = &domain.CalculationTrace{
			ID:         uuid.New().String(),
			TenantID:   run.TenantID,
			SupplierID: row.SupplierID,
			RunID:      run.ID,
			FinalScore: row.FinalScore,
			Steps:      scoring.BuildTrace(row),
			CreatedAt:  now,
		}
	}
	return traces
}

// Flagged returns the rows carrying at least one screen flag, in rank order.
func Flagged(run *domain.ScoreRun) []*domain.ScoreBreakdown {
	var out []*domain.ScoreBreakdown
	for _, row := range run.Table.Rows {
		if len(row.Flags) > 0 {
			out = append(out, row)
		}
	}
	return out
}

// GetReasons extracts the reasons of non-pass screen outcomes for one supplier.
func GetReasons(run *domain.ScoreRun, supplierID string) []string {
	var reasons []string
	for _, r := range run.Screens {
		if r.SupplierID != supplierID || !r.Flagged() {
			continue
		}
		if r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
