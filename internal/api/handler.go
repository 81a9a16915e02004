package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/verdant/internal/bands"
	"github.com/opensource-finance/verdant/internal/bus"
	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/metrics"
	"github.com/opensource-finance/verdant/internal/proxy"
	"github.com/opensource-finance/verdant/internal/ranking"
	"github.com/opensource-finance/verdant/internal/repository"
	"github.com/opensource-finance/verdant/internal/scoring"
	"github.com/opensource-finance/verdant/internal/screen"
	"github.com/opensource-finance/verdant/internal/worker"
)

// maxBodyBytes bounds request bodies, which may carry a full supplier batch.
const maxBodyBytes = 16 << 20

// Services are the collaborators the API is built on. Bus, Cache, Proxies,
// Submitter and Limiter may be nil.
type Services struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Screens   *screen.Engine
	Processor *ranking.Processor
	Proxies   *proxy.Service
	Pipeline  *worker.Pipeline
	Submitter *worker.Submitter
	Worker    *worker.Worker
	Limiter   domain.Limiter
	Workers   int
	Version   string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	screens   *screen.Engine
	processor *ranking.Processor
	proxies   *proxy.Service
	pipeline  *worker.Pipeline
	submitter *worker.Submitter
	worker    *worker.Worker
	workers   int
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(s Services) *Handler {
	processor := s.Processor
	if processor == nil {
		processor = ranking.NewProcessor()
	}
	return &Handler{
		repo:      s.Repo,
		cache:     s.Cache,
		bus:       s.Bus,
		screens:   s.Screens,
		processor: processor,
		proxies:   s.Proxies,
		pipeline:  s.Pipeline,
		submitter: s.Submitter,
		worker:    s.Worker,
		workers:   s.Workers,
		version:   s.Version,
	}
}

// SaveSuppliersResponse is the response for POST /suppliers.
type SaveSuppliersResponse struct {
	Saved int      `json:"saved"`
	IDs   []string `json:"ids"`
}

// SaveSuppliers stores one supplier object or an array of them.
func (h *Handler) SaveSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var records []*domain.SupplierRecord
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var rec domain.SupplierRecord
		err = json.Unmarshal(body, &rec)
		records = []*domain.SupplierRecord{&rec}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	resp := SaveSuppliersResponse{IDs: make([]string, 0, len(records))}
	for i, rec := range records {
		if rec == nil || rec.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "supplier id is required",
				"index": i,
				"saved": resp.Saved,
			})
			return
		}
		if err := h.repo.SaveSupplier(ctx, tenantID, rec); err != nil {
			slog.Error("failed to save supplier", "supplier_id", rec.ID, "error", err)
			writeFailure(w, err)
			return
		}
		resp.Saved++
		resp.IDs = append(resp.IDs, rec.ID)
	}

	h.invalidateProxies(r)

	slog.Info("suppliers saved", "tenant_id", tenantID, "count", resp.Saved)
	writeJSON(w, http.StatusCreated, resp)
}

// ListSuppliers returns every stored supplier ordered by ID.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ListSuppliers(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suppliers": records,
		"count":     len(records),
	})
}

// GetSupplier returns one stored supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.GetSupplier(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteSupplier removes one stored supplier.
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteSupplier(r.Context(), GetTenantID(r.Context()), id); err != nil {
		writeFailure(w, err)
		return
	}
	h.invalidateProxies(r)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// GetTrace returns the latest calculation trace for a supplier.
func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := h.repo.GetLatestTrace(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// GetBands returns the bands scoring would use for the tenant.
func (h *Handler) GetBands(w http.ResponseWriter, r *http.Request) {
	b, err := h.pipeline.Bands(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PutBands stores a new bands version. JSON and YAML bodies are accepted.
func (h *Handler) PutBands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var b *domain.ReferenceBands
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		b, err = bands.Parse(body)
	} else {
		b = &domain.ReferenceBands{}
		if err = json.Unmarshal(body, b); err == nil {
			err = bands.Validate(b)
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bands: "+err.Error())
		return
	}

	if err := h.repo.SaveBands(ctx, tenantID, b); err != nil {
		writeFailure(w, err)
		return
	}

	slog.Info("bands saved", "tenant_id", tenantID, "version", b.Version, "industries", len(b.Industries))
	writeJSON(w, http.StatusOK, b)
}

// GetSettings returns the tenant's scoring configuration.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.pipeline.Settings(r.Context(), GetTenantID(r.Context()), nil)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutSettings validates and stores the tenant's scoring configuration.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	cfg := domain.DefaultScoringConfig()
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := h.repo.SaveSettings(ctx, tenantID, &cfg); err != nil {
		writeFailure(w, err)
		return
	}

	slog.Info("settings saved", "tenant_id", tenantID, "policy", cfg.Policy, "normalization", cfg.Normalization)
	writeJSON(w, http.StatusOK, cfg)
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	Config     *domain.ScoringConfig `json:"config,omitempty"`
	UseProxies bool                  `json:"useProxies,omitempty"`
}

// Score scores the stored population, screens it and saves a trace per supplier.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ScoreRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	}

	records, err := h.repo.ListSuppliers(ctx, tenantID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	b, err := h.pipeline.Bands(ctx, tenantID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	cfg, err := h.pipeline.Settings(ctx, tenantID, req.Config)
	if err != nil {
		writeFailure(w, err)
		return
	}
	proxies, err := h.pipeline.Proxies(ctx, tenantID, req.UseProxies)
	if err != nil {
		writeFailure(w, err)
		return
	}

	scoreStart := time.Now()
	rows, err := scoring.ScorePopulation(ctx, records, scoring.Input{
		Config:  cfg,
		Bands:   b,
		Proxies: proxies,
		Workers: h.workers,
	})
	if err != nil {
		slog.Error("scoring failed", "tenant_id", tenantID, "error", err)
		writeFailure(w, err)
		return
	}
	scoringMs := time.Since(scoreStart).Milliseconds()
	metrics.ObserveScore(len(rows), time.Since(scoreStart))

	var screened []domain.ScreenResult
	if h.screens != nil {
		screened = h.screens.ScreenPopulation(ctx, records, rows)
		for _, res := range screened {
			if res.Flagged() {
				metrics.ScreenFlags.WithLabelValues(res.ScreenID, res.Outcome).Inc()
			}
		}
	}

	run := h.processor.Process(ctx, &ranking.RunInput{
		TenantID:     tenantID,
		TraceID:      GetTraceID(ctx),
		BandsVersion: b.Version,
		Rows:         rows,
		Screens:      screened,
		ScoringMs:    scoringMs,
		StartTime:    start,
	})

	for _, trace := range ranking.Traces(run) {
		if err := h.repo.SaveTrace(ctx, tenantID, trace); err != nil {
			slog.Error("failed to save trace", "supplier_id", trace.SupplierID, "error", err)
		}
	}

	if h.bus != nil {
		if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicScoreCompleted, run.Metadata); err != nil {
			slog.Warn("failed to publish score completion", "run_id", run.ID, "error", err)
		}
	}

	slog.Info("population scored",
		"tenant_id", tenantID,
		"run_id", run.ID,
		"suppliers", run.Metadata.Suppliers,
		"flagged", run.Metadata.Flagged,
		"duration_ms", run.Metadata.TotalMs,
	)
	writeJSON(w, http.StatusOK, run)
}

// HealthResponse is the response for health endpoints.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services,omitempty"`
	Cache    *CacheStats       `json:"cache,omitempty"`
	Worker   *worker.Stats     `json:"worker,omitempty"`
}

// CacheStats reports the in-process cache occupancy.
type CacheStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// localCache is implemented by caches with an in-process tier.
type localCache interface {
	Stats() (size int, capacity int)
}

// Health handles GET /health requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.version,
	})
}

// Ready handles GET /ready requests.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := make(map[string]string)
	allHealthy := true

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			services[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		services[name] = "healthy"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventbus", func() error { return h.bus.Ping(ctx) })
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:   status,
		Version:  h.version,
		Services: services,
	}
	if lc, ok := h.cache.(localCache); ok {
		size, capacity := lc.Stats()
		resp.Cache = &CacheStats{Size: size, Capacity: capacity}
	}
	if h.worker != nil {
		stats := h.worker.GetStats()
		resp.Worker = &stats
	}
	writeJSON(w, statusCode, resp)
}

func (h *Handler) invalidateProxies(r *http.Request) {
	if h.proxies == nil {
		return
	}
	if err := h.proxies.Invalidate(r.Context(), GetTenantID(r.Context())); err != nil {
		slog.Warn("failed to invalidate proxies", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps sentinel errors to HTTP status codes.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoBands):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrUnknownScenario):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, worker.ErrNoWorker):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
