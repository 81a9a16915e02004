// Loader pushes a supplier CSV into a running Verdant server.
//
// Usage:
//
//	go run ./cmd/loader -csv suppliers.csv -url http://localhost:8080 -tenant acme -score
//
// This tool:
//  1. Reads suppliers from a CSV with snake_case field headers
//  2. Posts them to /suppliers in batches
//  3. Optionally scores the population and runs one scenario
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/verdant/internal/domain"
)

// Stats tracks load results
type Stats struct {
	Batches int64
	Saved   int64
	Errors  int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to supplier CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Verdant base URL")
	tenantID := flag.String("tenant", "default", "Tenant ID for requests")
	batchSize := flag.Int("batch", 100, "Suppliers per request")
	workers := flag.Int("workers", 4, "Number of concurrent uploads")
	score := flag.Bool("score", false, "Score the population after loading")
	top := flag.Int("top", 10, "Rows of the ranked table to print")
	scenario := flag.String("scenario", "", "Scenario to run after loading (s1..s4)")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: loader -csv suppliers.csv [-url http://localhost:8080] [-tenant acme]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	client := &client{
		http:     &http.Client{Timeout: 2 * time.Minute},
		baseURL:  *baseURL,
		tenantID: *tenantID,
	}

	if err := client.health(); err != nil {
		fmt.Printf("ERROR: Verdant not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("✓ Verdant is healthy")

	records, err := readSuppliersCSV(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Read %d suppliers from %s\n", len(records), *csvPath)

	start := time.Now()
	stats := upload(client, batches(records, *batchSize), *workers)
	fmt.Printf("✓ Saved %d suppliers in %d batches (%d errors) in %s\n",
		stats.Saved, stats.Batches, stats.Errors, time.Since(start).Round(time.Millisecond))

	if *score {
		run, err := client.score()
		if err != nil {
			fmt.Printf("ERROR: scoring failed: %v\n", err)
			os.Exit(1)
		}
		printTable(run, *top)
	}

	if *scenario != "" {
		run, err := client.scenario(*scenario)
		if err != nil {
			fmt.Printf("ERROR: scenario failed: %v\n", err)
			os.Exit(1)
		}
		printScenario(run)
	}

	if stats.Errors > 0 {
		os.Exit(1)
	}
}

func batches(records []*domain.SupplierRecord, size int) [][]*domain.SupplierRecord {
	if size <= 0 {
		size = 100
	}
	var out [][]*domain.SupplierRecord
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

func upload(c *client, work [][]*domain.SupplierRecord, numWorkers int) *Stats {
	stats := &Stats{}
	ch := make(chan []*domain.SupplierRecord)
	var wg sync.WaitGroup

	for i := 0; i < max(numWorkers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range ch {
				atomic.AddInt64(&stats.Batches, 1)
				n, err := c.saveSuppliers(batch)
				if err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					fmt.Printf("ERROR: batch starting %s: %v\n", batch[0].ID, err)
					continue
				}
				atomic.AddInt64(&stats.Saved, int64(n))
			}
		}()
	}

	for _, batch := range work {
		ch <- batch
	}
	close(ch)
	wg.Wait()
	return stats
}

type client struct {
	http     *http.Client
	baseURL  string
	tenantID string
}

func (c *client) health() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) saveSuppliers(batch []*domain.SupplierRecord) (int, error) {
	var resp struct {
		Saved int `json:"saved"`
	}
	if err := c.post("/suppliers", batch, http.StatusCreated, &resp); err != nil {
		return 0, err
	}
	return resp.Saved, nil
}

func (c *client) score() (*domain.ScoreRun, error) {
	var run domain.ScoreRun
	if err := c.post("/score", map[string]any{}, http.StatusOK, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *client) scenario(kind string) (*domain.ScenarioRun, error) {
	var run domain.ScenarioRun
	if err := c.post("/scenarios/"+kind, map[string]any{}, http.StatusOK, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *client) post(path string, body any, want int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.Unmarshal(data, out)
}

func printTable(run *domain.ScoreRun, top int) {
	fmt.Println()
	fmt.Printf("Ranked %d suppliers (bands %s, %dms)\n",
		run.Metadata.Suppliers, run.Metadata.BandsVersion, run.Metadata.TotalMs)
	fmt.Printf("%-4s %-12s %-24s %-14s %6s %6s %6s %7s %5s\n",
		"#", "ID", "Name", "Industry", "E", "S", "G", "Final", "Cmp")
	for i, r := range run.Table.Rows {
		if top > 0 && i >= top {
			break
		}
		capped := ""
		if r.Capped {
			capped = " (capped)"
		}
		fmt.Printf("%-4d %-12s %-24.24s %-14.14s %6.1f %6.1f %6.1f %7.2f %4.0f%%%s\n",
			r.Rank, r.SupplierID, r.Name, r.Industry,
			r.Environmental, r.Social, r.Governance, r.FinalScore, r.Completeness*100, capped)
	}
	if run.Metadata.Flagged > 0 {
		fmt.Printf("\n%d suppliers flagged by screens\n", run.Metadata.Flagged)
	}
}

func printScenario(run *domain.ScenarioRun) {
	fmt.Println()
	fmt.Printf("Scenario %s (%s): %s\n", run.Kind, run.ID, run.Status)
	if run.Result == nil {
		return
	}
	if opt := run.Result.Optimization; opt != nil {
		fmt.Printf("  margin threshold %.1f%%, %d qualifying, constraint applied: %v\n",
			opt.MarginThreshold, opt.Qualifying, opt.ConstraintApplied)
	}
	for _, v := range run.Result.Variants {
		tau := "n/a"
		if v.Comparison.KendallTau != nil {
			tau = fmt.Sprintf("%.3f", *v.Comparison.KendallTau)
		}
		fmt.Printf("  %-28s tau=%-6s mean shift=%.2f max shift=%.0f\n",
			v.Label, tau, v.Comparison.MeanRankShift, v.Comparison.MaxRankShift)
	}
	if d := run.Result.Disparity; d != nil {
		fmt.Printf("  disparity max=%.2f mean=%.2f\n", d.Max, d.Mean)
	}
}
