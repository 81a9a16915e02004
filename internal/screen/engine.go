// Package screen provides the CEL-Go based supplier screening engine.
// Screens read a scored supplier and never change its score; non-pass
// outcomes surface as flags on the breakdown.
package screen

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/scoring"
)

// Unknown is the value bound to an optional variable that has no value.
const Unknown = -1.0

// Engine is the CEL-based screening engine.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledScreen
	maxWorkers int
}

// CompiledScreen holds a pre-compiled CEL program.
type CompiledScreen struct {
	Config  *domain.ScreenConfig
	Program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("supplier", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("final_score", cel.DoubleType),
		cel.Variable("composite", cel.DoubleType),
		cel.Variable("environmental", cel.DoubleType),
		cel.Variable("social", cel.DoubleType),
		cel.Variable("governance", cel.DoubleType),
		cel.Variable("completeness", cel.DoubleType),
		cel.Variable("capped", cel.BoolType),
		cel.Variable("rank", cel.IntType),
		cel.Variable("industry", cel.StringType),
		cel.Variable("country", cel.StringType),
		// Optional inputs are bound to -1 when unknown
		cel.Variable("risk_penalty", cel.DoubleType),
		cel.Variable("risk_factor", cel.DoubleType),
		cel.Variable("revenue", cel.DoubleType),
		cel.Variable("emission_intensity", cel.DoubleType),
		cel.Variable("geopolitical_risk", cel.DoubleType),
		cel.Variable("climate_risk", cel.DoubleType),
		cel.Variable("labor_risk", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledScreen),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateScreen compiles a screen without changing the loaded set.
func (e *Engine) ValidateScreen(cfg *domain.ScreenConfig) error {
	if cfg == nil {
		return fmt.Errorf("screen config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(cfg)
	return err
}

// LoadScreen compiles and loads a screen into the engine.
func (e *Engine) LoadScreen(cfg *domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}
	e.compiled[cfg.ID] = compiled
	return nil
}

// ReloadScreens replaces every loaded screen with the enabled ones given.
// On a compile error the previous set stays loaded.
func (e *Engine) ReloadScreens(configs []*domain.ScreenConfig) error {
	next := make(map[string]*CompiledScreen)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}
	e.compiled = next
	return nil
}

// ScreensCount returns the number of loaded screens.
func (e *Engine) ScreensCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedScreens returns the loaded configurations ordered by ID.
func (e *Engine) LoadedScreens() []*domain.ScreenConfig {
	screens := e.snapshot()
	out := make([]*domain.ScreenConfig, len(screens))
	for i, s := range screens {
		out[i] = s.Config
	}
	return out
}

// Close unloads every screen.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledScreen)
	return nil
}

// Input is one scored supplier to screen.
type Input struct {
	Record    *domain.SupplierRecord
	Breakdown *domain.ScoreBreakdown
}

// Evaluate runs every loaded screen against one supplier. Results are ordered
// by screen ID.
func (e *Engine) Evaluate(ctx context.Context, in Input) []domain.ScreenResult {
	screens := e.snapshot()
	if len(screens) == 0 {
		return nil
	}
	activation := buildActivation(in)
	results := make([]domain.ScreenResult, len(screens))
	for i, s := range screens {
		results[i] = evaluate(s, activation, in.Breakdown.SupplierID)
	}
	return results
}

// ScreenPopulation screens every supplier in parallel, appends flags for
// non-pass outcomes to each breakdown, and returns all results in row order.
func (e *Engine) ScreenPopulation(ctx context.Context, records []*domain.SupplierRecord, rows []*domain.ScoreBreakdown) []domain.ScreenResult {
	if e.ScreensCount() == 0 || len(rows) == 0 {
		return nil
	}

	byID := make(map[string]*domain.SupplierRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	perRow := make([][]domain.ScreenResult, len(rows))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, row := range rows {
		wg.Add(1)
		go func(idx int, b *domain.ScoreBreakdown) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			res := e.Evaluate(ctx, Input{Record: byID[b.SupplierID], Breakdown: b})
			for _, r := range res {
				if r.Flagged() {
					b.Flags = append(b.Flags, fmt.Sprintf("%s%s: %s", r.ScreenID, r.Outcome, r.Reason))
				}
			}
			perRow[idx] = res
		}(i, row)
	}

	wg.Wait()

	var all []domain.ScreenResult
	for _, res := range perRow {
		all = append(all, res...)
	}
	return all
}

func (e *Engine) snapshot() []*CompiledScreen {
	e.mu.RLock()
	screens := make([]*CompiledScreen, 0, len(e.compiled))
	for _, s := range e.compiled {
		screens = append(screens, s)
	}
	e.mu.RUnlock()

	sort.Slice(screens, func(i, j int) bool { return screens[i].Config.ID < screens[j].Config.ID })
	return screens
}

func buildActivation(in Input) map[string]any {
	b := in.Breakdown
	rec := in.Record
	if rec == nil {
		rec = &domain.SupplierRecord{ID: b.SupplierID, Industry: b.Industry, Country: b.Country}
	}

	var emission *float64
	if ms, ok := b.Metrics[domain.MetricEmissionsIntensity]; ok {
		emission = ms.Raw
	}
	if emission == nil {
		emission = scoring.Intensity(rec.Emissions, rec.Revenue)
	}
	risks := rec.Risks()

	activation := map[string]any{
		"final_score":        b.FinalScore,
		"composite":          b.CompositeNoRisk,
		"environmental":      b.Environmental,
		"social":             b.Social,
		"governance":         b.Governance,
		"completeness":       b.Completeness,
		"capped":             b.Capped,
		"rank":               int64(b.Rank),
		"industry":           b.Industry,
		"country":            b.Country,
		"risk_penalty":       orUnknown(b.RiskPenalty),
		"risk_factor":        orUnknown(b.RiskFactor),
		"revenue":            orUnknown(rec.Revenue),
		"emission_intensity": orUnknown(emission),
		"geopolitical_risk":  orUnknown(scoring.NormalizeRisk(risks.Geopolitical)),
		"climate_risk":       orUnknown(scoring.NormalizeRisk(risks.Climate)),
		"labor_risk":         orUnknown(scoring.NormalizeRisk(risks.Labor)),
	}
	activation["supplier"] = map[string]any{
		"id":       b.SupplierID,
		"name":     b.Name,
		"industry": b.Industry,
		"country":  b.Country,
	}
	return activation
}

// evaluate runs a single screen and returns the result.
func evaluate(s *CompiledScreen, activation map[string]any, supplierID string) domain.ScreenResult {
	start := time.Now()

	result := domain.ScreenResult{
		ScreenID:   s.Config.ID,
		SupplierID: supplierID,
	}

	out, _, err := s.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.ScreenError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessUs = time.Since(start).Microseconds()
		return result
	}

	result.Value = toValue(out)
	result.Outcome, result.Reason = matchBand(result.Value, s.Config.Bands)
	result.ProcessUs = time.Since(start).Microseconds()
	return result
}

// toValue converts a CEL value to a number.
func toValue(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the first band containing value.
// Lower bounds are inclusive, upper bounds exclusive; a nil upper is unbounded.
func matchBand(value float64, bands []domain.ScreenBand) (string, string) {
	for _, band := range bands {
		if band.LowerLimit != nil && value < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && value >= *band.UpperLimit {
			continue
		}
		return band.Outcome, band.Reason
	}

	// Default to pass if no band matches
	return domain.ScreenPass, "no matching band"
}

func (e *Engine) compile(cfg *domain.ScreenConfig) (*CompiledScreen, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screen %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("screen %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screen %s: %w", cfg.ID, err)
	}

	return &CompiledScreen{
		Config:  cfg,
		Program: program,
	}, nil
}

func orUnknown(v *float64) float64 {
	if v == nil {
		return Unknown
	}
	return *v
}
