package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/verdant/internal/bands"
	"github.com/opensource-finance/verdant/internal/bus"
	"github.com/opensource-finance/verdant/internal/cache"
	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/proxy"
	"github.com/opensource-finance/verdant/internal/ranking"
	"github.com/opensource-finance/verdant/internal/repository"
	"github.com/opensource-finance/verdant/internal/screen"
	"github.com/opensource-finance/verdant/internal/worker"
)

type testEnv struct {
	server   *Server
	repo     domain.Repository
	bus      *bus.ChannelBus
	pipeline *worker.Pipeline
}

type envOptions struct {
	fallback *domain.ReferenceBands
	limiter  bool
	async    bool
}

// createTestServer wires a server over a temporary SQLite database.
func createTestServer(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "verdant.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(1000)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	screens, err := screen.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create screen engine: %v", err)
	}

	proxies := proxy.NewService(repo, lru)
	pipeline := worker.NewPipeline(repo, lru, proxies, worker.PipelineConfig{
		Workers:     4,
		CacheTTL:    time.Minute,
		DefaultSeed: 42,
		Bands:       opts.fallback,
	})

	services := Services{
		Repo:      repo,
		Cache:     lru,
		Bus:       eventBus,
		Screens:   screens,
		Processor: ranking.NewProcessor(),
		Proxies:   proxies,
		Pipeline:  pipeline,
		Workers:   4,
		Version:   "test-v1",
	}
	if opts.limiter {
		limiter, err := cache.NewLimiter(lru, 2, time.Minute)
		if err != nil {
			t.Fatalf("failed to create limiter: %v", err)
		}
		services.Limiter = limiter
	}
	if opts.async {
		w := worker.NewWorker(eventBus, pipeline)
		if err := w.Start(worker.Config{WorkerCount: 1}); err != nil {
			t.Fatalf("failed to start worker: %v", err)
		}
		t.Cleanup(func() { w.Stop() })
		services.Submitter = worker.NewSubmitter(eventBus, pipeline, nil)
		services.Worker = w
	}

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return &testEnv{
		server:   NewServer(cfg, services),
		repo:     repo,
		bus:      eventBus,
		pipeline: pipeline,
	}
}

func (e *testEnv) do(t *testing.T, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func testSuppliers(n int) []*domain.SupplierRecord {
	industries := []string{"Manufacturing", "Retail", "Technology"}
	out := make([]*domain.SupplierRecord, n)
	for i := range out {
		out[i] = &domain.SupplierRecord{
			ID:                   fmt.Sprintf("sup-%02d", i),
			Name:                 fmt.Sprintf("Supplier %d", i),
			Industry:             industries[i%len(industries)],
			Country:              "NL",
			Revenue:              domain.Float(200 + float64(i)*25),
			Margin:               domain.Float(4 + float64(i)),
			Emissions:            domain.Float(40 + float64(i)*8),
			WaterUse:             domain.Float(150 + float64(i)*5),
			Waste:                domain.Float(10 + float64(i)),
			RenewableShare:       domain.Float(float64(i%10) / 10),
			InjuryRate:           domain.Float(float64(i % 4)),
			TrainingHours:        domain.Float(float64(5 + 2*i)),
			WageRatio:            domain.Float(1.2),
			WorkforceDiversity:   domain.Float(0.45),
			BoardDiversity:       domain.Float(0.35),
			BoardIndependence:    domain.Float(0.55),
			AntiCorruptionPolicy: domain.Bool(i%3 != 0),
			TransparencyScore:    domain.Float(float64(40 + 3*i)),
		}
	}
	return out
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response: %v (%s)", err, rr.Body.String())
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default()})

	t.Run("Health", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/health", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[HealthResponse](t, rr)
		if resp.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Version)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/ready", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[HealthResponse](t, rr)
		for _, svc := range []string{"repository", "cache", "eventbus"} {
			if resp.Services[svc] != "healthy" {
				t.Errorf("expected %s healthy, got %q", svc, resp.Services[svc])
			}
		}
		if resp.Cache == nil || resp.Cache.Capacity != 1000 {
			t.Errorf("expected cache stats with capacity 1000, got %+v", resp.Cache)
		}
		if resp.Worker != nil {
			t.Errorf("expected no worker stats without a worker, got %+v", resp.Worker)
		}
	})

	t.Run("ReadyWithWorker", func(t *testing.T) {
		async := createTestServer(t, envOptions{fallback: bands.Default(), async: true})
		rr := async.do(t, http.MethodGet, "/ready", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[HealthResponse](t, rr)
		if resp.Worker == nil || resp.Worker.SubscriptionCount != 1 {
			t.Errorf("expected one worker subscription, got %+v", resp.Worker)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/metrics", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "verdant_suppliers_scored_total") {
			t.Error("expected verdant metrics in exposition")
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/suppliers", "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/health", "", nil)
		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID header")
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected X-Trace-ID header")
		}
	})
}

func TestSupplierEndpoints(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default()})
	suppliers := testSuppliers(4)

	t.Run("SaveSingle", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/suppliers", "tenant-001", suppliers[0])
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if resp := decode[SaveSuppliersResponse](t, rr); resp.Saved != 1 {
			t.Errorf("expected 1 saved, got %d", resp.Saved)
		}
	})

	t.Run("SaveBatch", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/suppliers", "tenant-001", suppliers[1:])
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if resp := decode[SaveSuppliersResponse](t, rr); resp.Saved != 3 {
			t.Errorf("expected 3 saved, got %d", resp.Saved)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/suppliers", "tenant-001", `{"name":"nameless"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/suppliers", "tenant-001", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/suppliers", "tenant-001", nil)
		resp := decode[map[string]any](t, rr)
		if resp["count"] != float64(4) {
			t.Errorf("expected 4 suppliers, got %v", resp["count"])
		}

		rr = env.do(t, http.MethodGet, "/suppliers", "tenant-002", nil)
		if resp := decode[map[string]any](t, rr); resp["count"] != float64(0) {
			t.Errorf("tenant isolation broken: got %v", resp["count"])
		}
	})

	t.Run("GetAndDelete", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/suppliers/sup-02", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if rec := decode[domain.SupplierRecord](t, rr); rec.Industry != "Technology" {
			t.Errorf("unexpected supplier: %+v", rec)
		}

		rr = env.do(t, http.MethodDelete, "/suppliers/sup-02", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		rr = env.do(t, http.MethodGet, "/suppliers/sup-02", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestBandsAndSettings(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default()})

	t.Run("BuiltinBands", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/bands", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if b := decode[domain.ReferenceBands](t, rr); b.Version != bands.DefaultVersion {
			t.Errorf("expected builtin version, got %s", b.Version)
		}
	})

	t.Run("PutYAML", func(t *testing.T) {
		yamlBody := `
version: custom-1
industries:
  Other:
    emissions_intensity: {min: 0.1, max: 2.0}
`
		req := httptest.NewRequest(http.MethodPut, "/bands", strings.NewReader(yamlBody))
		req.Header.Set("Content-Type", "application/yaml")
		req.Header.Set(TenantIDHeader, "tenant-001")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = env.do(t, http.MethodGet, "/bands", "tenant-001", nil)
		if b := decode[domain.ReferenceBands](t, rr); b.Version != "custom-1" {
			t.Errorf("expected stored version, got %s", b.Version)
		}
	})

	t.Run("PutInvalid", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/bands", "tenant-001", `{"industries":{}}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Settings", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/settings", "tenant-001", nil)
		if cfg := decode[domain.ScoringConfig](t, rr); cfg.Policy != domain.PolicyThresholdPenalty {
			t.Errorf("expected default policy, got %s", cfg.Policy)
		}

		rr = env.do(t, http.MethodPut, "/settings", "tenant-001", `{"policy":"risk_factor"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		rr = env.do(t, http.MethodGet, "/settings", "tenant-001", nil)
		if cfg := decode[domain.ScoringConfig](t, rr); cfg.Policy != domain.PolicyRiskFactor {
			t.Errorf("expected stored policy, got %s", cfg.Policy)
		}

		rr = env.do(t, http.MethodPut, "/settings", "tenant-001", `{"policy":"coin_flip"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestScoreEndpoint(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default()})
	env.do(t, http.MethodPost, "/suppliers", "tenant-001", testSuppliers(6))

	rr := env.do(t, http.MethodPost, "/screens", "tenant-001", CreateScreenRequest{
		ID:         "all-flagged",
		Name:       "Flag everyone",
		Expression: "final_score >= 0.0",
		Bands: []domain.ScreenBand{
			{UpperLimit: domain.Float(1), Outcome: domain.ScreenPass},
			{LowerLimit: domain.Float(1), Outcome: domain.ScreenReview, Reason: "always"},
		},
		Enabled: true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, "/screens/reload", "tenant-001", nil); rr.Code != http.StatusOK {
		t.Fatalf("reload failed: %d %s", rr.Code, rr.Body.String())
	}

	t.Run("Score", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/score", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		run := decode[domain.ScoreRun](t, rr)
		if len(run.Table.Rows) != 6 {
			t.Fatalf("expected 6 rows, got %d", len(run.Table.Rows))
		}
		for i, row := range run.Table.Rows {
			if row.Rank != i+1 {
				t.Errorf("row %d has rank %d", i, row.Rank)
			}
			if len(row.Flags) != 1 {
				t.Errorf("expected one flag on %s, got %v", row.SupplierID, row.Flags)
			}
		}
		if run.Metadata.Flagged != 6 || run.Metadata.ScreensEvaluated != 1 {
			t.Errorf("unexpected metadata: %+v", run.Metadata)
		}
		if run.Metadata.BandsVersion != bands.DefaultVersion {
			t.Errorf("expected builtin bands version, got %s", run.Metadata.BandsVersion)
		}
	})

	t.Run("Trace", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/suppliers/sup-01/trace", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		trace := decode[domain.CalculationTrace](t, rr)
		if trace.SupplierID != "sup-01" || len(trace.Steps) == 0 {
			t.Errorf("unexpected trace: %+v", trace)
		}
	})

	t.Run("InvalidOverride", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/score", "tenant-001", `{"config":{"pillarWeights":{"environmental":-1}}}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidScreen", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/screens", "tenant-001", CreateScreenRequest{
			ID: "bad", Name: "Bad", Expression: "nope(",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestScoreWithoutBands(t *testing.T) {
	env := createTestServer(t, envOptions{})
	env.do(t, http.MethodPost, "/suppliers", "tenant-001", testSuppliers(2))

	rr := env.do(t, http.MethodPost, "/score", "tenant-001", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestScenarioEndpoints(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default()})
	env.do(t, http.MethodPost, "/suppliers", "tenant-001", testSuppliers(9))

	var runID string
	t.Run("RunSync", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/scenarios/s2", "tenant-001", `{"parameters":{"pillar":"environmental","factors":[0.8,1.2]}}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		run := decode[domain.ScenarioRun](t, rr)
		if run.Status != domain.RunCompleted || run.Result == nil {
			t.Fatalf("expected completed run, got %+v", run)
		}
		if len(run.Result.Variants) != 2 {
			t.Errorf("expected 2 variants, got %d", len(run.Result.Variants))
		}
		runID = run.ID
	})

	t.Run("Get", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/scenarios/"+runID, "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[map[string]any](t, rr)
		if resp["status"] != string(domain.RunCompleted) {
			t.Errorf("expected completed, got %v", resp["status"])
		}

		rr = env.do(t, http.MethodGet, "/scenarios/"+runID, "tenant-002", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for other tenant, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/scenarios?limit=5", "tenant-001", nil)
		if resp := decode[map[string]any](t, rr); resp["count"] != float64(1) {
			t.Errorf("expected 1 run, got %v", resp["count"])
		}
		rr = env.do(t, http.MethodGet, "/scenarios?limit=zero", "tenant-001", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ExportCSV", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/scenarios/"+runID+"/export?format=csv", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("expected text/csv, got %s", ct)
		}
		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		if len(lines) != 1+9*3 {
			t.Errorf("expected header plus 27 rows, got %d lines", len(lines))
		}
	})

	t.Run("ExportZIP", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/scenarios/"+runID+"/export?format=zip", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Header().Get("Content-Disposition"), ".zip") {
			t.Errorf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
		}
		if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
			t.Error("expected zip archive body")
		}
	})

	t.Run("ExportBadFormat", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/scenarios/"+runID+"/export?format=xlsx", "tenant-001", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/scenarios/s7", "tenant-001", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("AsyncDisabled", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/scenarios/s1", "tenant-001", `{"async":true}`)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestAsyncScenario(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default(), async: true})
	env.do(t, http.MethodPost, "/suppliers", "tenant-001", testSuppliers(6))

	rr := env.do(t, http.MethodPost, "/scenarios/s3", "tenant-001", `{"async":true,"seed":7}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	runID, _ := decode[map[string]any](t, rr)["runId"].(string)
	if runID == "" {
		t.Fatal("expected runId")
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		res, err := env.pipeline.Result(context.Background(), "tenant-001", runID)
		if err == nil {
			if res.Seed == nil || *res.Seed != 7 {
				t.Errorf("expected seed 7, got %v", res.Seed)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timeout waiting for async scenario")
}

func TestRateLimit(t *testing.T) {
	env := createTestServer(t, envOptions{fallback: bands.Default(), limiter: true})

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodGet, "/suppliers", "tenant-001", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodGet, "/suppliers", "tenant-001", nil); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/suppliers", "tenant-002", nil); rr.Code != http.StatusOK {
		t.Errorf("other tenant should not be limited, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Errorf("health should bypass the limiter, got %d", rr.Code)
	}
}
