// Verdant - ESG supplier scoring and what-if scenarios in one binary.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/verdant/internal/api"
	"github.com/opensource-finance/verdant/internal/bands"
	"github.com/opensource-finance/verdant/internal/bus"
	"github.com/opensource-finance/verdant/internal/cache"
	"github.com/opensource-finance/verdant/internal/config"
	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/proxy"
	"github.com/opensource-finance/verdant/internal/ranking"
	"github.com/opensource-finance/verdant/internal/repository"
	"github.com/opensource-finance/verdant/internal/screen"
	"github.com/opensource-finance/verdant/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("VERDANT_CONFIG"), "Path to YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting verdant",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"policy", cfg.Scoring.Policy,
		"normalization", cfg.Scoring.Normalization,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Reference bands used when a tenant has stored none
	fallbackBands, err := bands.Load(cfg.Bands.Path)
	if err != nil {
		slog.Error("failed to load reference bands", "path", cfg.Bands.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("reference bands loaded",
		"version", fallbackBands.Version,
		"industries", len(fallbackBands.Industries),
	)

	// Initialize Proxy Service
	proxySvc := proxy.NewService(repo, cacheImpl)

	// Initialize Screen Engine
	screens, err := screen.NewEngine(cfg.Scenarios.Workers)
	if err != nil {
		slog.Error("failed to initialize screen engine", "error", err)
		os.Exit(1)
	}
	defer screens.Close()

	// Load screens from database (none are built in - configure via API)
	if err := loadScreensFromDatabase(ctx, repo, screens); err != nil {
		slog.Error("failed to load screens", "error", err)
		os.Exit(1)
	}
	slog.Info("screen engine initialized", "screens_count", screens.ScreensCount())

	// Initialize Scenario Pipeline
	pipeline := worker.NewPipeline(repo, cacheImpl, proxySvc, worker.PipelineConfig{
		Workers:     cfg.Scenarios.Workers,
		CacheTTL:    cfg.Scenarios.CacheTTL,
		DefaultSeed: cfg.Scenarios.DefaultSeed,
		Scoring:     cfg.Scoring,
		Bands:       fallbackBands,
	})

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	var submitter *worker.Submitter
	if cfg.Tier == domain.TierPro || cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, pipeline)
		submitter = worker.NewSubmitter(busImpl, pipeline, cfg.Worker.Tenants)

		workerCfg := worker.Config{
			TenantIDs:   cfg.Worker.Tenants,
			WorkerCount: cfg.Worker.Count,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(cfg.Worker.Tenants))
		}
	}

	// Initialize Rate Limiter
	var limiter domain.Limiter
	if cfg.RateLimit.Enabled {
		l, err := cache.NewLimiter(cacheImpl, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			slog.Error("failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		limiter = l
		slog.Info("rate limiter initialized",
			"requests", cfg.RateLimit.Requests,
			"window", cfg.RateLimit.Window.String(),
		)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Services{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Screens:   screens,
		Processor: ranking.NewProcessor(),
		Proxies:   proxySvc,
		Pipeline:  pipeline,
		Submitter: submitter,
		Worker:    asyncWorker,
		Limiter:   limiter,
		Workers:   cfg.Scenarios.Workers,
		Version:   Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("verdant is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("verdant shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadScreensFromDatabase loads the global screens into the engine.
func loadScreensFromDatabase(ctx context.Context, repo domain.Repository, engine *screen.Engine) error {
	stored, err := repo.ListScreens(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list screens from database", "error", err)
		return nil // Start with no screens - they can be added via API
	}

	if len(stored) > 0 {
		slog.Info("loading screens from database", "count", len(stored))
		return engine.ReloadScreens(stored)
	}

	slog.Info("no screens in database - configure via POST /screens API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                 VERDANT                   ║")
	fmt.Println("  ║       ESG Supplier Scoring Engine         ║")
	fmt.Println("  ║   Every supplier, scored and explained.   ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Policy:   %s (%s bands)\n", cfg.Scoring.Policy, cfg.Scoring.Normalization)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /suppliers               - Store one or many suppliers")
	fmt.Println("    GET  /suppliers               - List suppliers")
	fmt.Println("    GET  /suppliers/{id}/trace    - Latest calculation trace")
	fmt.Println("    GET  /bands, PUT /bands       - Reference bands")
	fmt.Println("    GET  /settings, PUT /settings - Scoring configuration")
	fmt.Println("    POST /score                   - Score and rank the population")
	fmt.Println("    GET  /screens                 - List loaded screens")
	fmt.Println("    POST /screens                 - Create a screen")
	fmt.Println("    POST /screens/reload          - Hot-reload screens from database")
	fmt.Println("    POST /scenarios/{kind}        - Run s1..s4 (sync or async)")
	fmt.Println("    GET  /scenarios/{id}          - Get a scenario run")
	fmt.Println("    GET  /scenarios/{id}/export   - Export as csv or zip")
	fmt.Println("    GET  /health, /ready, /metrics")
	fmt.Println()
}
