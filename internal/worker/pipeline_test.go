package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/verdant/internal/bands"
	"github.com/opensource-finance/verdant/internal/cache"
	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/proxy"
	"github.com/opensource-finance/verdant/internal/repository"
)

type fixture struct {
	repo     domain.Repository
	cache    *cache.LRUCache
	pipeline *Pipeline
}

func newFixture(t *testing.T, fallback *domain.ReferenceBands) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "verdant.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	p := NewPipeline(repo, lru, proxy.NewService(repo, lru), PipelineConfig{
		Workers:     4,
		CacheTTL:    time.Minute,
		DefaultSeed: 42,
		Bands:       fallback,
	})
	return &fixture{repo: repo, cache: lru, pipeline: p}
}

func seedSuppliers(t *testing.T, repo domain.Repository, tenantID string, n int) {
	t.Helper()
	industries := []string{"Manufacturing", "Retail", "Logistics"}
	for i := 0; i < n; i++ {
		rec := &domain.SupplierRecord{
			ID:                   fmt.Sprintf("sup-%02d", i),
			Name:                 fmt.Sprintf("Supplier %d", i),
			Industry:             industries[i%len(industries)],
			Country:              "DE",
			Revenue:              domain.Float(100 + float64(i)*10),
			Margin:               domain.Float(5 + float64(i)),
			Emissions:            domain.Float(50 + float64(i)*5),
			WaterUse:             domain.Float(200 + float64(i)*3),
			Waste:                domain.Float(20 + float64(i)),
			RenewableShare:       domain.Float(float64(i*7%100) / 100),
			InjuryRate:           domain.Float(float64(i % 5)),
			TrainingHours:        domain.Float(float64(10 + i)),
			WageRatio:            domain.Float(1.1),
			WorkforceDiversity:   domain.Float(0.4),
			BoardDiversity:       domain.Float(0.3),
			BoardIndependence:    domain.Float(0.6),
			AntiCorruptionPolicy: domain.Bool(i%2 == 0),
			TransparencyScore:    domain.Float(float64(50 + i)),
		}
		if err := repo.SaveSupplier(context.Background(), tenantID, rec); err != nil {
			t.Fatalf("failed to save supplier: %v", err)
		}
	}
}

func TestPipelineExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, bands.Default())
	seedSuppliers(t, f.repo, "tenant-001", 9)

	t.Run("Completed", func(t *testing.T) {
		run, err := f.pipeline.Execute(ctx, "tenant-001", &domain.ScenarioRequest{Kind: "s2"})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if run.Status != domain.RunCompleted {
			t.Errorf("expected completed, got %s", run.Status)
		}
		if run.Kind != domain.ScenarioWeightSensitivity {
			t.Errorf("expected kind alias resolved, got %s", run.Kind)
		}
		if run.Result == nil || len(run.Result.Baseline.Rows) != 9 {
			t.Fatalf("expected 9 baseline rows, got %+v", run.Result)
		}
		if run.Result.TenantID != "tenant-001" {
			t.Errorf("expected tenant on result, got %q", run.Result.TenantID)
		}

		stored, err := f.repo.GetScenarioRun(ctx, "tenant-001", run.ID)
		if err != nil {
			t.Fatalf("run not stored: %v", err)
		}
		if stored.Status != domain.RunCompleted || stored.CompletedAt == nil {
			t.Errorf("unexpected stored run: %+v", stored)
		}

		cached, _ := f.cache.GetScenarioResult(ctx, "tenant-001", run.ID)
		if cached == nil {
			t.Error("expected result to be cached")
		}
	})

	t.Run("SeedIsRecorded", func(t *testing.T) {
		run, err := f.pipeline.Execute(ctx, "tenant-001", &domain.ScenarioRequest{Kind: domain.ScenarioMissingness})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if run.Result.Seed == nil || *run.Result.Seed != 42 {
			t.Errorf("expected default seed 42, got %v", run.Result.Seed)
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := f.pipeline.Execute(ctx, "tenant-001", &domain.ScenarioRequest{Kind: "s9"})
		if !errors.Is(err, domain.ErrUnknownScenario) {
			t.Errorf("expected ErrUnknownScenario, got %v", err)
		}
	})

	t.Run("InvalidOverride", func(t *testing.T) {
		bad := domain.DefaultScoringConfig()
		bad.PillarWeights.Social = -1
		run, err := f.pipeline.Execute(ctx, "tenant-001", &domain.ScenarioRequest{Kind: "s4", Config: &bad})
		if !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		if run == nil || run.Status != domain.RunFailed || run.Error == "" {
			t.Errorf("expected failed run with error, got %+v", run)
		}
	})
}

func TestPipelineNoBands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedSuppliers(t, f.repo, "tenant-001", 3)

	run, err := f.pipeline.Execute(ctx, "tenant-001", &domain.ScenarioRequest{Kind: domain.ScenarioOptimization})
	if !errors.Is(err, domain.ErrNoBands) {
		t.Fatalf("expected ErrNoBands, got %v", err)
	}
	if run.Status != domain.RunFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}

	if err := f.repo.SaveBands(ctx, "tenant-001", bands.Default()); err != nil {
		t.Fatalf("SaveBands failed: %v", err)
	}
	if _, err := f.pipeline.Execute(ctx, "tenant-001", &domain.ScenarioRequest{Kind: domain.ScenarioOptimization}); err != nil {
		t.Errorf("expected stored bands to be used, got %v", err)
	}
}

func TestPipelineSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, bands.Default())

	cfg, err := f.pipeline.Settings(ctx, "tenant-001", nil)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if cfg.Policy != domain.PolicyThresholdPenalty {
		t.Errorf("expected default policy, got %s", cfg.Policy)
	}

	stored := domain.DefaultScoringConfig()
	stored.Policy = domain.PolicyRiskFactor
	if err := f.repo.SaveSettings(ctx, "tenant-001", &stored); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	override := domain.DefaultScoringConfig()
	override.Policy = ""
	override.Normalization = ""
	override.PillarWeights = domain.PillarWeights{Environmental: 1}
	cfg, err = f.pipeline.Settings(ctx, "tenant-001", &override)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if cfg.Policy != domain.PolicyRiskFactor {
		t.Errorf("override should inherit stored policy, got %s", cfg.Policy)
	}
	if cfg.PillarWeights.Environmental != 1 {
		t.Errorf("override weights not applied: %+v", cfg.PillarWeights)
	}

	// A partial override keeps every section it leaves out.
	partial := domain.ScoringConfig{PillarWeights: domain.PillarWeights{Social: 1}}
	cfg, err = f.pipeline.Settings(ctx, "tenant-001", &partial)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if cfg.PillarWeights.Social != 1 || cfg.PillarWeights.Environmental != 0 {
		t.Errorf("partial weights not applied: %+v", cfg.PillarWeights)
	}
	if cfg.Risk != stored.Risk {
		t.Errorf("risk settings not inherited: %+v", cfg.Risk)
	}
	if cfg.CompletenessThreshold != stored.CompletenessThreshold || cfg.CompletenessCap != stored.CompletenessCap {
		t.Errorf("completeness cap not inherited: %.2f/%.2f", cfg.CompletenessThreshold, cfg.CompletenessCap)
	}
	if len(cfg.MetricWeights) != len(stored.MetricWeights) {
		t.Errorf("metric weights not inherited")
	}
}

func TestPipelineResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, bands.Default())
	seedSuppliers(t, f.repo, "tenant-001", 4)

	pending, err := f.pipeline.Prepare(ctx, "tenant-001", &domain.ScenarioRequest{Kind: "s1"})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if _, err := f.pipeline.Result(ctx, "tenant-001", pending.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("pending run should have no result, got %v", err)
	}

	run, err := f.pipeline.Execute(ctx, "tenant-001", &pending.Request)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.ID != pending.ID || run.CreatedAt.Sub(pending.CreatedAt).Abs() > time.Millisecond {
		t.Errorf("execute should keep the prepared run identity")
	}

	f.cache.Delete(ctx, "tenant-001", "scenario:"+run.ID)
	res, err := f.pipeline.Result(ctx, "tenant-001", run.ID)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Optimization == nil {
		t.Error("expected optimization summary from repository")
	}

	if _, err := f.pipeline.Execute(ctx, "tenant-001", &pending.Request); !errors.Is(err, repository.ErrInvalidInput) {
		t.Errorf("re-running a finished run should fail, got %v", err)
	}
}
