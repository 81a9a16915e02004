// Package export renders scenario results as CSV tables or a ZIP bundle.
package export

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/opensource-finance/verdant/internal/domain"
)

// Format specifies the export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatZIP Format = "zip"
)

// ParseFormat accepts "csv" or "zip"; empty selects CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", string(FormatCSV):
		return FormatCSV, nil
	case string(FormatZIP):
		return FormatZIP, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatZIP {
		return "application/zip"
	}
	return "text/csv"
}

// Filename returns the download name for a run.
func (f Format) Filename(runID string) string {
	return fmt.Sprintf("scenario-%s.%s", runID, f)
}

// Write encodes res in format f.
func Write(w io.Writer, f Format, res *domain.ScenarioResult) error {
	if res == nil {
		return fmt.Errorf("scenario result is required")
	}
	switch f {
	case FormatCSV:
		return WriteCSV(w, res)
	case FormatZIP:
		return WriteZIP(w, res)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

var tableHeader = []string{
	"table", "rank", "supplier_id", "name", "industry", "country",
	"environmental", "social", "governance", "composite_no_risk",
	"risk_penalty", "risk_factor", "final_score", "completeness",
	"capped", "policy", "flags",
}

// WriteCSV writes the baseline and every variant as one long table, one row
// per (table, supplier).
func WriteCSV(w io.Writer, res *domain.ScenarioResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, t := range Tables(res) {
		if err := writeRows(cw, t); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes a single ranked table.
func WriteTable(w io.Writer, t domain.RankedTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	if err := writeRows(cw, t); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Tables returns the baseline followed by each variant table.
func Tables(res *domain.ScenarioResult) []domain.RankedTable {
	tables := make([]domain.RankedTable, 0, 1+len(res.Variants))
	tables = append(tables, res.Baseline)
	for _, v := range res.Variants {
		tables = append(tables, v.Table)
	}
	return tables
}

func writeRows(cw *csv.Writer, t domain.RankedTable) error {
	for _, r := range t.Rows {
		row := []string{
			t.Label,
			strconv.Itoa(r.Rank),
			r.SupplierID,
			r.Name,
			r.Industry,
			r.Country,
			formatFloat(r.Environmental),
			formatFloat(r.Social),
			formatFloat(r.Governance),
			formatFloat(r.CompositeNoRisk),
			formatNullFloat(r.RiskPenalty),
			formatNullFloat(r.RiskFactor),
			formatFloat(r.FinalScore),
			formatFloat(r.Completeness),
			strconv.FormatBool(r.Capped),
			string(r.Policy),
			strings.Join(r.Flags, "; "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteComparisons writes one row per variant with its statistics against
// the baseline.
func WriteComparisons(w io.Writer, res *domain.ScenarioResult) error {
	cw := csv.NewWriter(w)
	header := []string{
		"label", "factor", "rate", "imputation", "masked_cells", "normalization",
		"kendall_tau", "mean_rank_shift", "max_rank_shift", "mae",
		"top_k", "top_k_preservation", "matched",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, v := range res.Variants {
		c := v.Comparison
		row := []string{
			v.Label,
			formatNullFloat(v.Factor),
			formatNullFloat(v.Rate),
			string(v.Imputation),
			strconv.Itoa(v.MaskedCells),
			string(v.Normalization),
			formatNullFloat(c.KendallTau),
			formatFloat(c.MeanRankShift),
			formatFloat(c.MaxRankShift),
			formatNullFloat(c.MAE),
			strconv.Itoa(c.TopK),
			formatNullFloat(c.TopKPreservation),
			strconv.Itoa(c.Matched),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOptimization writes the S1 ordering.
func WriteOptimization(w io.Writer, s *domain.OptimizationSummary) error {
	cw := csv.NewWriter(w)
	header := []string{
		"rank", "supplier_id", "name", "industry", "emission_intensity",
		"intensity_imputed", "margin", "margin_source", "final_score",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range s.Rows {
		row := []string{
			strconv.Itoa(r.Rank),
			r.SupplierID,
			r.Name,
			r.Industry,
			formatNullFloat(r.EmissionIntensity),
			strconv.FormatBool(r.IntensityImputed),
			formatFloat(r.Margin),
			string(r.MarginSource),
			formatFloat(r.FinalScore),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDisparity writes the S4 per-industry differences, ordered by industry.
func WriteDisparity(w io.Writer, d *domain.DisparitySummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"industry", "mean_abs_difference"}); err != nil {
		return err
	}
	for _, ind := range sortedKeys(d.ByIndustry) {
		if err := cw.Write([]string{ind, formatFloat(d.ByIndustry[ind])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteZIP bundles every table as its own CSV plus the comparison summary and
// the full JSON result.
func WriteZIP(w io.Writer, res *domain.ScenarioResult) error {
	zw := zip.NewWriter(w)

	add := func(name string, fn func(io.Writer) error) error {
		f, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	}

	if err := add("baseline.csv", func(f io.Writer) error { return WriteTable(f, res.Baseline) }); err != nil {
		return err
	}
	for i, v := range res.Variants {
		table := v.Table
		name := fmt.Sprintf("variant-%02d-%s.csv", i+1, slug(v.Label))
		if err := add(name, func(f io.Writer) error { return WriteTable(f, table) }); err != nil {
			return err
		}
	}
	if len(res.Variants) > 0 {
		if err := add("comparisons.csv", func(f io.Writer) error { return WriteComparisons(f, res) }); err != nil {
			return err
		}
	}
	if res.Optimization != nil {
		if err := add("optimization.csv", func(f io.Writer) error { return WriteOptimization(f, res.Optimization) }); err != nil {
			return err
		}
	}
	if res.Disparity != nil {
		if err := add("disparity.csv", func(f io.Writer) error { return WriteDisparity(f, res.Disparity) }); err != nil {
			return err
		}
	}
	if err := add("result.json", func(f io.Writer) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}); err != nil {
		return err
	}

	return zw.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatNullFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
