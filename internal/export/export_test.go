package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/verdant/internal/domain"
)

func sampleResult() *domain.ScenarioResult {
	row := func(id string, rank int, final float64) *domain.ScoreBreakdown {
		return &domain.ScoreBreakdown{
			SupplierID:  id,
			Name:        "Supplier " + id,
			Industry:    "Retail",
			Country:     "FR",
			FinalScore:  final,
			Rank:        rank,
			RiskPenalty: domain.Float(2.5),
			Policy:      domain.PolicyThresholdPenalty,
			Flags:       []string{"low-esg.review: watch"},
		}
	}
	rate := 0.05
	return &domain.ScenarioResult{
		ID:       "run-1",
		Kind:     domain.ScenarioMissingness,
		Baseline: domain.RankedTable{Label: "baseline", Rows: []*domain.ScoreBreakdown{row("a", 1, 80), row("b", 2, 60)}},
		Variants: []domain.ScenarioVariant{{
			Label:      "knn p=5%",
			Rate:       &rate,
			Imputation: domain.ImputeKNN,
			Table:      domain.RankedTable{Label: "knn p=5%", Rows: []*domain.ScoreBreakdown{row("b", 1, 70), row("a", 2, 65)}},
			Comparison: domain.Comparison{KendallTau: domain.Float(-1), MeanRankShift: 1, MaxRankShift: 1, Matched: 2},
		}},
		Disparity: &domain.DisparitySummary{ByIndustry: map[string]float64{"Retail": 3, "Logistics": 1}, Max: 3, Mean: 2},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("ZIP")
	require.NoError(t, err)
	assert.Equal(t, FormatZIP, f)
	assert.Equal(t, "application/zip", f.ContentType())
	assert.Equal(t, "scenario-abc.zip", f.Filename("abc"))

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleResult()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, tableHeader, records[0])
	assert.Equal(t, []string{"baseline", "1", "a"}, records[1][:3])
	assert.Equal(t, "knn p=5%", records[3][0])
	assert.Equal(t, "2.5000", records[1][10])
	assert.Equal(t, "", records[1][11], "nil risk factor exports empty")
	assert.Equal(t, "low-esg.review: watch", records[1][16])
}

func TestWriteZIP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatZIP, sampleResult()))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = data
	}

	for _, name := range []string{"baseline.csv", "variant-01-knn-p-5.csv", "comparisons.csv", "disparity.csv", "result.json"} {
		assert.Contains(t, files, name)
	}
	assert.NotContains(t, files, "optimization.csv")

	disparity, err := csv.NewReader(bytes.NewReader(files["disparity.csv"])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Logistics", "1.0000"}, disparity[1])

	comparisons, err := csv.NewReader(bytes.NewReader(files["comparisons.csv"])).ReadAll()
	require.NoError(t, err)
	require.Len(t, comparisons, 2)
	assert.Equal(t, "-1.0000", comparisons[1][6])
}

func TestWriteNilResult(t *testing.T) {
	assert.Error(t, Write(io.Discard, FormatCSV, nil))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "industry-mean-p-10", slug("industry_mean p=10%"))
	assert.Equal(t, "environmental-1-2", slug("Environmental ×1.2"))
}
