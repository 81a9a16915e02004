package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/verdant/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, services Services) *Server {
	handler := NewHandler(services)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and metrics endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(RateLimitMiddleware(services.Limiter))

		// Supplier records
		r.Post("/suppliers", handler.SaveSuppliers)
		r.Get("/suppliers", handler.ListSuppliers)
		r.Get("/suppliers/{id}", handler.GetSupplier)
		r.Delete("/suppliers/{id}", handler.DeleteSupplier)
		r.Get("/suppliers/{id}/trace", handler.GetTrace)

		// Reference bands and scoring settings
		r.Get("/bands", handler.GetBands)
		r.Put("/bands", handler.PutBands)
		r.Get("/settings", handler.GetSettings)
		r.Put("/settings", handler.PutSettings)

		// Population scoring
		r.Post("/score", handler.Score)

		// Screen management
		r.Get("/screens", handler.ListScreens)
		r.Get("/screens/{id}", handler.GetScreen)
		r.Post("/screens", handler.CreateScreen)
		r.Post("/screens/reload", handler.ReloadScreens)

		// Scenarios
		r.Get("/scenarios", handler.ListScenarios)
		r.Post("/scenarios/{kind}", handler.RunScenario)
		r.Get("/scenarios/{id}", handler.GetScenario)
		r.Get("/scenarios/{id}/export", handler.ExportScenario)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
