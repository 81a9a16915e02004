package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/scoring"
)

func row(id string, final float64) *domain.ScoreBreakdown {
	return &domain.ScoreBreakdown{
		SupplierID: id,
		FinalScore: final,
		Metrics:    map[domain.MetricKey]domain.MetricScore{},
	}
}

func TestProcessor(t *testing.T) {
	proc := NewProcessor()
	ctx := context.Background()

	t.Run("RanksRows", func(t *testing.T) {
		input := &RunInput{
			TenantID:  "tenant-001",
			TraceID:   "trace-001",
			StartTime: time.Now(),
			Rows:      []*domain.ScoreBreakdown{row("c", 40), row("a", 80), row("b", 80)},
		}

		run := proc.Process(ctx, input)

		want := []string{"a", "b", "c"}
		got := run.Table.IDs()
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, got)
			}
			if run.Table.Rows[i].Rank != i+1 {
				t.Errorf("row %d: expected rank %d, got %d", i, i+1, run.Table.Rows[i].Rank)
			}
		}
		if run.TenantID != "tenant-001" {
			t.Errorf("expected tenantID 'tenant-001', got '%s'", run.TenantID)
		}
		if run.ID == "" {
			t.Error("missing run ID")
		}
	})

	t.Run("EmptyRows", func(t *testing.T) {
		run := proc.Process(ctx, &RunInput{TenantID: "tenant-001"})
		if run.Table.Rows == nil || len(run.Table.Rows) != 0 {
			t.Errorf("expected empty non-nil rows, got %v", run.Table.Rows)
		}
		if run.Metadata.Suppliers != 0 {
			t.Errorf("expected 0 suppliers, got %d", run.Metadata.Suppliers)
		}
	})

	t.Run("MetadataPopulated", func(t *testing.T) {
		flagged := row("a", 20)
		flagged.Flags = []string{"low-esg.fail: ESG score below 40"}
		input := &RunInput{
			TenantID:     "tenant-001",
			TraceID:      "trace-006",
			BandsVersion: "2025.1",
			StartTime:    time.Now(),
			ScoringMs:    3,
			Rows:         []*domain.ScoreBreakdown{flagged, row("b", 70)},
			Screens: []domain.ScreenResult{
				{ScreenID: "low-esg", SupplierID: "a", Outcome: domain.ScreenFail},
				{ScreenID: "low-esg", SupplierID: "b", Outcome: domain.ScreenPass},
				{ScreenID: "capped", SupplierID: "a", Outcome: domain.ScreenPass},
				{ScreenID: "capped", SupplierID: "b", Outcome: domain.ScreenPass},
			},
		}

		run := proc.Process(ctx, input)
		md := run.Metadata

		if md.TraceID != "trace-006" {
			t.Error("missing traceID in metadata")
		}
		if md.BandsVersion != "2025.1" {
			t.Errorf("expected bands version 2025.1, got %q", md.BandsVersion)
		}
		if md.Suppliers != 2 {
			t.Errorf("expected 2 suppliers, got %d", md.Suppliers)
		}
		if md.ScreensEvaluated != 2 {
			t.Errorf("expected 2 screens evaluated, got %d", md.ScreensEvaluated)
		}
		if md.Flagged != 1 {
			t.Errorf("expected 1 flagged supplier, got %d", md.Flagged)
		}
		if md.EngineVersion != EngineVersion {
			t.Errorf("expected engine version %s, got %s", EngineVersion, md.EngineVersion)
		}
		if md.TotalMs < 0 {
			t.Error("TotalMs should be non-negative")
		}
	})
}

func TestTraces(t *testing.T) {
	run := NewProcessor().Process(context.Background(), &RunInput{
		TenantID: "tenant-001",
		Rows:     []*domain.ScoreBreakdown{row("a", 50), row("b", 60)},
	})

	traces := Traces(run)
	if len(traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(traces))
	}
	for i, tr := range traces {
		if tr.RunID != run.ID || tr.TenantID != "tenant-001" {
			t.Errorf("trace %d not tied to run: %+v", i, tr)
		}
		if tr.SupplierID != run.Table.Rows[i].SupplierID {
			t.Errorf("trace %d: expected supplier %s, got %s", i, run.Table.Rows[i].SupplierID, tr.SupplierID)
		}
		if len(tr.Steps) == 0 || tr.Steps[len(tr.Steps)-1].Stage != scoring.StageFinal {
			t.Errorf("trace %d should end with the final stage", i)
		}
	}
}

func TestGetReasons(t *testing.T) {
	run := &domain.ScoreRun{
		Screens: []domain.ScreenResult{
			{SupplierID: "a", Outcome: domain.ScreenPass, Reason: "All good"},
			{SupplierID: "a", Outcome: domain.ScreenFail, Reason: "ESG score below 40"},
			{SupplierID: "b", Outcome: domain.ScreenReview, Reason: "Low completeness"},
			{SupplierID: "a", Outcome: domain.ScreenReview, Reason: "High emission intensity"},
		},
	}

	reasons := GetReasons(run, "a")

	if len(reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %d", len(reasons))
	}
	if reasons[0] != "ESG score below 40" {
		t.Errorf("expected 'ESG score below 40', got '%s'", reasons[0])
	}
	if reasons[1] != "High emission intensity" {
		t.Errorf("expected 'High emission intensity', got '%s'", reasons[1])
	}
}
