package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/verdant/internal/domain"
)

// GlobalTenantID is used for screens that apply to all tenants.
const GlobalTenantID = "*"

// ListScreens returns the screens loaded in the engine.
func (h *Handler) ListScreens(w http.ResponseWriter, r *http.Request) {
	screens := h.screens.LoadedScreens()
	writeJSON(w, http.StatusOK, map[string]any{
		"screens": screens,
		"count":   len(screens),
	})
}

// GetScreen returns a stored screen, loaded or not.
func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.GetScreen(r.Context(), GlobalTenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// CreateScreenRequest is the request body for creating a screen.
type CreateScreenRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	Bands       []domain.ScreenBand `json:"bands"`
	Enabled     bool                `json:"enabled"`
}

// CreateScreen validates a screen and saves it globally. After saving, call
// POST /screens/reload to apply it.
func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateScreenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	cfg := &domain.ScreenConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	if err := h.screens.ValidateScreen(cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveScreen(ctx, GlobalTenantID, cfg); err != nil {
		slog.Error("failed to save screen", "id", cfg.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save screen")
		return
	}

	slog.Info("screen created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"screen":  cfg,
		"message": "Screen created. Call POST /screens/reload to apply changes.",
	})
}

// ReloadScreens reloads all screens from the database into the engine.
func (h *Handler) ReloadScreens(w http.ResponseWriter, r *http.Request) {
	stored, err := h.repo.ListScreens(r.Context(), GlobalTenantID)
	if err != nil {
		slog.Error("failed to list screens from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load screens from database")
		return
	}

	if err := h.screens.ReloadScreens(stored); err != nil {
		slog.Error("failed to reload screens into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload screens: "+err.Error())
		return
	}

	slog.Info("screens reloaded from database", "stored", len(stored), "loaded", h.screens.ScreensCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "screens reloaded successfully",
		"count":   h.screens.ScreensCount(),
	})
}
