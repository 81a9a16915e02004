// Package worker runs queued scenario requests off the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/verdant/internal/bus"
	"github.com/opensource-finance/verdant/internal/domain"
)

// GlobalTenant is the routing tenant used when no tenant list is configured.
const GlobalTenant = "_global"

// ErrNoWorker is returned when no worker serves the requesting tenant.
var ErrNoWorker = errors.New("no scenario worker for tenant")

// Worker processes scenario requests asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *Pipeline

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = one global subscription)
	TenantIDs []string

	// WorkerCount bounds the number of scenarios run at once
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, pipeline *Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      b,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	w.sem = make(chan struct{}, count)

	if len(cfg.TenantIDs) == 0 {
		if err := w.subscribe(GlobalTenant); err != nil {
			return err
		}
		slog.Info("global worker started", "workers", count)
		return nil
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
		"workers", count,
	)
	return nil
}

func (w *Worker) subscribe(route string) error {
	sub, err := w.bus.Subscribe(w.ctx, route, domain.TopicScenarioRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Debug("worker subscribed",
		"tenant_id", route,
		"topic", domain.TopicScenarioRequested,
	)
	return nil
}

// handleMessage hands a request to a free slot, blocking while all are busy.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.ScenarioRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse scenario request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	if tenantID == GlobalTenant {
		return fmt.Errorf("scenario request %s has no tenant", msg.ID)
	}

	select {
	case w.sem <- struct{}{}: // Acquire
	case <-ctx.Done():
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }() // Release
		// Runs outlive the subscription so Stop can drain them
		w.process(trace.ContextWithSpanContext(w.ctx, trace.SpanContextFromContext(ctx)), tenantID, &req)
	}()
	return nil
}

func (w *Worker) process(ctx context.Context, tenantID string, req *domain.ScenarioRequest) {
	run, err := w.pipeline.Execute(ctx, tenantID, req)
	if run == nil {
		slog.Error("scenario request rejected",
			"run_id", req.RunID,
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}

	event := domain.ScenarioCompletedEvent{
		RunID:    run.ID,
		TenantID: tenantID,
		Kind:     run.Kind,
		Status:   run.Status,
		Error:    run.Error,
	}
	if run.Result != nil {
		event.DurationMs = run.Result.DurationMs
	}
	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicScenarioCompleted, event); err != nil {
		slog.Error("failed to publish scenario completion",
			"run_id", run.ID,
			"error", err,
		)
	}
}

// Stop unsubscribes, waits for in-flight scenarios, then cancels the worker.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()
	w.cancel()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Busy              int      `json:"busy"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Busy:              len(w.sem),
	}
}

// Submitter queues scenario requests for a Worker, possibly in another process.
type Submitter struct {
	bus      domain.EventBus
	pipeline *Pipeline
	tenants  []string
}

// NewSubmitter creates a submitter routing to the given worker tenants.
// An empty list routes every tenant through GlobalTenant.
func NewSubmitter(b domain.EventBus, pipeline *Pipeline, tenants []string) *Submitter {
	return &Submitter{bus: b, pipeline: pipeline, tenants: tenants}
}

// Route returns the bus tenant a request for tenantID is published on.
func (s *Submitter) Route(tenantID string) (string, error) {
	if len(s.tenants) == 0 {
		return GlobalTenant, nil
	}
	if !slices.Contains(s.tenants, tenantID) {
		return "", fmt.Errorf("%w: %s", ErrNoWorker, tenantID)
	}
	return tenantID, nil
}

// Submit stores the run as pending and publishes it for a worker.
func (s *Submitter) Submit(ctx context.Context, tenantID string, req *domain.ScenarioRequest) (*domain.ScenarioRun, error) {
	route, err := s.Route(tenantID)
	if err != nil {
		return nil, err
	}
	run, err := s.pipeline.Prepare(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	if err := bus.PublishJSON(ctx, s.bus, route, domain.TopicScenarioRequested, run.Request); err != nil {
		return nil, fmt.Errorf("failed to queue scenario: %w", err)
	}
	return run, nil
}
