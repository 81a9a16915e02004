package scoring

import (
	"context"
	"sort"
	"sync"

	"github.com/opensource-finance/verdant/internal/domain"
)

// DefaultWorkers bounds population scoring when the caller passes no limit.
const DefaultWorkers = 8

// Input is everything needed to score a population.
type Input struct {
	Config  domain.ScoringConfig
	Bands   *domain.ReferenceBands
	Proxies domain.ProxyValues
	Workers int
}

// ScorePopulation scores every record in parallel and returns the breakdowns
// sorted by rank. Records are read only.
func ScorePopulation(ctx context.Context, records []*domain.SupplierRecord, in Input) ([]*domain.ScoreBreakdown, error) {
	if in.Bands.Empty() {
		return nil, domain.ErrNoBands
	}
	if len(records) == 0 {
		return []*domain.ScoreBreakdown{}, nil
	}

	workers := in.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]*domain.ScoreBreakdown, len(records))
	errs := make([]error, len(records))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, workers)

	for i, rec := range records {
		wg.Add(1)
		go func(idx int, r *domain.SupplierRecord) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = Score(r, in.Config, in.Bands, in.Proxies)
		}(i, rec)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	AssignRanks(results)
	return results, nil
}

// AssignRanks sorts by final score descending, supplier ID ascending, and
// numbers the rows from 1.
func AssignRanks(rows []*domain.ScoreBreakdown) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].FinalScore != rows[j].FinalScore {
			return rows[i].FinalScore > rows[j].FinalScore
		}
		return rows[i].SupplierID < rows[j].SupplierID
	})
	for i, r := range rows {
		r.Rank = i + 1
	}
}
