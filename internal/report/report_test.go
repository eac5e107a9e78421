package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/edfinlab/spendtrends/internal/config"
	"github.com/edfinlab/spendtrends/internal/models"
)

func sampleResult() *models.RunResult {
	corrected := func(id string, year int, typ models.InstitutionType, fte, fteCorrected, admin float64) models.CorrectedRecord {
		rec := models.CorrectedRecord{
			PanelRecord: models.PanelRecord{
				InstitutionID: id,
				Year:          year,
				Type:          typ,
				FTE:           models.Float(fte),
				AdminSpend:    models.Float(admin),
				TotalSpend:    models.Float(admin * 4),
				AdminShare:    models.Float(0.25),
				Extra:         map[string]string{"region": "west"},
			},
			FTECorrected: models.Float(fteCorrected),
			FTEAdjusted:  fte != fteCorrected,
			PerFTE:       map[models.SpendCategory]models.NullFloat{models.CategoryAdmin: models.Float(admin / fteCorrected)},
			PerFTEReal:   map[models.SpendCategory]models.NullFloat{},
			Real:         map[models.SpendCategory]models.NullFloat{},
		}
		return rec
	}
	series := func(metric, key, group string, values ...float64) models.YearlySeries {
		s := models.YearlySeries{Metric: metric, GroupKey: key, Group: group, Statistic: models.StatisticMedian}
		for i, v := range values {
			s.Points = append(s.Points, models.YearValue{Year: 2018 + i, Value: v, N: 2})
		}
		return s
	}

	return &models.RunResult{
		RunID:        "run-1",
		StartedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Records:      1234,
		Institutions: 2,
		Years:        []int{2018, 2019, 2020},
		BaseYear:     2018,
		Deflator:     models.Deflator{2018: 1.0, 2019: 1.02, 2020: 1.03},
		FTEDiagnosis: []models.YearChange{
			{Year: 2019, Evaluable: 2, Anomalous: 0, MeanChangePct: models.Float(10), MedianChangePct: models.Float(10)},
			{Year: 2020, Evaluable: 2, Anomalous: 1, AnomalousPct: 50, MeanChangePct: models.Float(160), MedianChangePct: models.Float(160)},
		},
		Corrections: []models.Correction{{
			InstitutionID: "pub-jump",
			Type:          models.InstitutionPublic,
			PreRatio:      500.0 / 120.0,
			PostRatio:     1.2,
			GrowthRate:    0.2,
			Years:         []int{2020},
			Original:      map[int]float64{2020: 500},
			Corrected:     map[int]float64{2020: 144},
			Converged:     true,
		}},
		Corrected: []models.CorrectedRecord{
			corrected("pub-jump", 2018, models.InstitutionPublic, 100, 100, 1000),
			corrected("pub-jump", 2019, models.InstitutionPublic, 120, 120, 1100),
			corrected("pub-jump", 2020, models.InstitutionPublic, 500, 144, 1200),
			corrected("priv-1", 2018, models.InstitutionPrivate, 50, 50, 800),
		},
		Series: []models.YearlySeries{
			series("admin_share", "", models.GroupOverall, 0.25, 0.26, 0.27),
			series("admin_share", "institution_type", "Public", 0.24, 0.25, 0.26),
			series("admin_share", "institution_type", "Private", 0.26, 0.27, 0.28),
			series("admin_per_fte_real", "institution_type", "Public", 10, 11, 12),
		},
		Trends: []models.TrendSummary{
			{
				Metric: "admin_share", Group: models.GroupOverall, Statistic: models.StatLinearTrend,
				Aggregate: models.StatisticMean, Status: models.TrendOK, N: 3,
				Slope: models.Float(0.01), RSquared: models.Float(1), PValue: models.Float(0.0001),
				Tier: "***", FirstYear: 2018, LastYear: 2020,
				FirstValue: models.Float(0.25), LastValue: models.Float(0.27), PercentChange: models.Float(8),
			},
			{
				Metric: "total_per_fte", Group: models.GroupOverall, Statistic: models.StatLinearTrend,
				Aggregate: models.StatisticMedian, Status: models.TrendNoVariance, N: 3,
				Slope: models.Float(0), Tier: "NA", Note: "all yearly values equal",
			},
		},
		Diagnostics: []models.Diagnostic{
			{Kind: models.DiagIneligibleForCorrection, Severity: models.SeverityWarning, InstitutionID: "priv-1", Stage: "correct", Message: "missing fte"},
			{Kind: models.DiagMissingDeflator, Severity: models.SeverityWarning, InstitutionID: "priv-1", Year: 2024, Stage: "adjust", Message: "no deflator"},
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCorrectedTable(t *testing.T) {
	table := CorrectedTable(sampleResult().Corrected)

	require.Len(t, table.Rows, 4)
	assert.Equal(t, "institution_id", table.Columns[0])
	assert.Equal(t, "region", table.Columns[len(table.Columns)-1])
	assert.Contains(t, table.Columns, "fte_corrected")
	assert.Contains(t, table.Columns, "admin_per_fte_real")
	assert.Contains(t, table.Columns, "state_real")

	col := func(name string) int {
		for i, c := range table.Columns {
			if c == name {
				return i
			}
		}
		t.Fatalf("column %s missing", name)
		return -1
	}
	jump := table.Rows[2]
	assert.Equal(t, "500", jump[col("fte")])
	assert.Equal(t, "144", jump[col("fte_corrected")])
	assert.Equal(t, "true", jump[col("fte_adjusted")])
	assert.Equal(t, "", jump[col("research_spend")], "missing values stay empty")
	assert.Equal(t, "west", jump[col("region")])
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, sampleResult().Trends))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 3)
	header := rows[0]
	assert.Equal(t, "metric", header[0])

	idx := map[string]int{}
	for i, h := range header {
		idx[h] = i
	}
	assert.Equal(t, "***", rows[1][idx["significance"]])
	assert.Equal(t, "0.0001", rows[1][idx["p_value"]])
	assert.Equal(t, "2018", rows[1][idx["first_year"]])
	assert.Equal(t, "no_variance", rows[2][idx["status"]])
	assert.Equal(t, "", rows[2][idx["r_squared"]], "undefined r² is blank, not zero")
	assert.Equal(t, "0", rows[2][idx["slope"]])
}

func TestWriteCSVEmptyTables(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCorrectionsCSV(&buf, nil))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 1)
	assert.Equal(t, "institution_id", rows[0][0])
}

func TestCorrectionsAndDiagnosticsTables(t *testing.T) {
	res := sampleResult()

	corr := CorrectionsTable(res.Corrections)
	require.Len(t, corr.Rows, 1)
	assert.Equal(t, []string{"pub-jump", "Public", "2020", "500", "144"}, corr.Rows[0][:5])

	diags := DiagnosticsTable(res.Diagnostics)
	require.Len(t, diags.Rows, 2)
	assert.Equal(t, "", diags.Rows[0][4], "institution-level diagnostics have no year")
	assert.Equal(t, "2024", diags.Rows[1][4])

	series := SeriesTable(res.Series)
	assert.Len(t, series.Rows, 12)
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleResult()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		SheetRun, SheetTrends, SheetYearly, SheetDiagnosis, SheetCorrections, SheetDiagnostics, SheetCorrected,
	}, f.GetSheetList())

	run, err := f.GetRows(SheetRun)
	require.NoError(t, err)
	assert.Equal(t, []string{"run_id", "run-1"}, run[1])

	trends, err := f.GetRows(SheetTrends)
	require.NoError(t, err)
	require.Len(t, trends, 3)
	assert.Equal(t, "metric", trends[0][0])
	assert.Equal(t, "admin_share", trends[1][0])

	panel, err := f.GetRows(SheetCorrected)
	require.NoError(t, err)
	assert.Len(t, panel, 5)
	assert.Equal(t, "pub-jump", panel[1][0])
}

func TestToCells(t *testing.T) {
	cells := toCells(
		[]string{"00123", "2020", "", "true", "NaN", "0.5"},
		[]string{"institution_id", "year", "x", "converged", "y", "z"},
	)
	assert.Equal(t, "00123", cells[0])
	assert.Equal(t, 2020.0, cells[1])
	assert.Nil(t, cells[2])
	assert.Equal(t, true, cells[3])
	assert.Equal(t, "NaN", cells[4])
	assert.Equal(t, 0.5, cells[5])
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	err := RenderChart(&buf, sampleResult(), ChartOptions{
		GroupKey: "institution_type", GroupA: "Public", GroupB: "Private",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestRenderChartWithoutComparison(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, &models.RunResult{}, ChartOptions{}))
	assert.NotZero(t, buf.Len())
}

func TestSeriesChange(t *testing.T) {
	s := models.YearlySeries{Points: []models.YearValue{{Year: 2018, Value: 10}, {Year: 2023, Value: 12}}}
	v, ok := SeriesChange(s).Get()
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9)

	_, ok = SeriesChange(models.YearlySeries{Points: s.Points[:1]}).Get()
	assert.False(t, ok)

	zero := models.YearlySeries{Points: []models.YearValue{{Year: 2018}, {Year: 2019, Value: 1}}}
	_, ok = SeriesChange(zero).Get()
	assert.False(t, ok)
}

func TestChangeValuesMarksUnmeasured(t *testing.T) {
	result := &models.RunResult{Series: []models.YearlySeries{
		{Metric: "admin_share", GroupKey: "institution_type", Group: "Public",
			Points: []models.YearValue{{Year: 2018, Value: 0.1}, {Year: 2023, Value: 0.12}}},
		{Metric: "instruction_share", GroupKey: "institution_type", Group: "Public",
			Points: []models.YearValue{{Year: 2020, Value: 0.3}}},
	}}

	values, measured := changeValues(result, "institution_type", "Public")
	assert.Equal(t, []bool{true, false, false, false}, measured)
	assert.InDelta(t, 20.0, values[0], 1e-9)

	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, result, ChartOptions{
		GroupKey: "institution_type", GroupA: "Public", GroupB: "Private",
	}))
	assert.NotZero(t, buf.Len())
}

func TestWriteConsole(t *testing.T) {
	var buf bytes.Buffer
	err := WriteConsole(&buf, sampleResult(), ConsoleOptions{AnomalyYear: 2020, Artifacts: []string{"out/a.csv"}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Records: 1,234")
	assert.Contains(t, out, "Years: 2018 - 2020 (3)")
	assert.Contains(t, out, "FTE ANOMALY DIAGNOSIS")
	assert.Contains(t, out, "<- anomaly year")
	assert.Contains(t, out, "pub-jump")
	assert.Contains(t, out, "2019: 1.02 (cumulative inflation +2.0%)")
	assert.Contains(t, out, "ineligible_for_correction")
	assert.Contains(t, out, "+1.00 pp")
	assert.Contains(t, out, "1. out/a.csv")
	assert.NotContains(t, out, "2,018")
}

func TestNewExporterChartComparison(t *testing.T) {
	cfg := config.Default()
	e := NewExporter(nil, cfg)
	assert.Equal(t, ChartOptions{GroupKey: "institution_type", GroupA: "Public", GroupB: "Private"}, e.chart)

	cfg.Analysis.Comparison.GroupB = ""
	e = NewExporter(nil, cfg)
	assert.Equal(t, ChartOptions{}, e.chart)
}

func TestExporterWritesEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Dir = dir
	var console bytes.Buffer

	paths, err := NewExporter(nil, cfg).WithConsole(&console).Export(context.Background(), sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 7)
	assert.Equal(t, filepath.Join(dir, cfg.Output.CorrectedFile), paths[0])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file %s left behind", e.Name())
	}
	assert.Len(t, entries, 7)
	assert.Contains(t, console.String(), "OUTPUT FILES")
}

func TestExporterSkipsDisabledArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output = config.OutputConfig{Dir: dir, SummaryFile: "summary.csv"}

	paths, err := NewExporter(nil, cfg).Export(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "summary.csv")}, paths)
}

func TestExporterCancelledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Dir = dir

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExporter(nil, cfg).WithConsole(&bytes.Buffer{}).Export(ctx, sampleResult())
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
