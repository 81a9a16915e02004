package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/export"
	"github.com/opensource-finance/verdant/internal/repository"
)

// ScenarioRequest is the request body for POST /scenarios/{kind}.
type ScenarioRequest struct {
	Config     *domain.ScoringConfig     `json:"config,omitempty"`
	Seed       *uint64                   `json:"seed,omitempty"`
	UseProxies bool                      `json:"useProxies,omitempty"`
	Async      bool                      `json:"async,omitempty"`
	Parameters domain.ScenarioParameters `json:"parameters"`
}

// RunScenario runs a scenario synchronously, or queues it when async is set.
func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	kind, err := domain.ParseScenarioKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	var body ScenarioRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	}

	req := &domain.ScenarioRequest{
		Kind:       kind,
		Config:     body.Config,
		Seed:       body.Seed,
		UseProxies: body.UseProxies,
		Parameters: body.Parameters,
	}

	if body.Async {
		if h.submitter == nil {
			writeError(w, http.StatusServiceUnavailable, "async scenarios are not enabled")
			return
		}
		run, err := h.submitter.Submit(ctx, tenantID, req)
		if err != nil {
			writeFailure(w, err)
			return
		}
		slog.Info("scenario queued", "tenant_id", tenantID, "run_id", run.ID, "kind", kind)
		w.Header().Set("Location", "/scenarios/"+run.ID)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"runId":  run.ID,
			"kind":   run.Kind,
			"status": run.Status,
		})
		return
	}

	run, err := h.pipeline.Execute(ctx, tenantID, req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListScenarios returns the tenant's most recent scenario runs.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.repo.ListScenarioRuns(r.Context(), GetTenantID(r.Context()), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	// Summaries only; fetch a run by ID for its tables
	for _, run := range runs {
		run.Result = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetScenario returns a scenario run, with its result once completed.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	res, err := h.pipeline.Result(ctx, tenantID, runID)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     runID,
			"kind":   res.Kind,
			"status": domain.RunCompleted,
			"result": res,
		})
		return
	}

	run, err := h.repo.GetScenarioRun(ctx, tenantID, runID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ExportScenario streams a completed run as CSV or ZIP.
func (h *Handler) ExportScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.pipeline.Result(ctx, GetTenantID(ctx), runID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, res); err != nil {
		slog.Error("export failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(runID)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
