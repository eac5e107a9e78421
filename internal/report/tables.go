// Package report renders a run's results bundle into the artifacts a reader
// consumes: CSV tables, an Excel workbook, a multi-panel chart and a console
// summary. Every renderer writes to an io.Writer; the Exporter owns files.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/edfinlab/spendtrends/internal/models"
)

// Table is a rectangular, string-typed view of one result section. Columns
// carries the header; every row has the same length.
type Table struct {
	Columns []string
	Rows    [][]string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatYear(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}

// CorrectedTable lays out the enriched panel: raw columns, the corrected FTE,
// then per-FTE, real per-FTE and real absolute spending for every category,
// then any pass-through columns in name order.
func CorrectedTable(records []models.CorrectedRecord) Table {
	cols := []string{
		models.ColumnInstitutionID,
		models.ColumnYear,
		models.ColumnInstitutionType,
		models.ColumnInstitutionName,
		models.ColumnStateCode,
		models.ColumnFTE,
		"fte_corrected",
		"fte_adjusted",
	}
	for _, c := range models.SpendCategories {
		cols = append(cols, models.SpendColumn(c))
	}
	for _, c := range models.ShareCategories {
		cols = append(cols, models.MetricName(models.KindShare, c))
	}
	cols = append(cols, "shares_excluded")
	for _, kind := range []models.MetricKind{models.KindPerFTE, models.KindPerFTEReal, models.KindReal} {
		for _, c := range models.SpendCategories {
			cols = append(cols, models.MetricName(kind, c))
		}
	}
	extras := extraColumns(records)
	cols = append(cols, extras...)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := []string{
			rec.InstitutionID,
			strconv.Itoa(rec.Year),
			string(rec.Type),
			rec.InstitutionName,
			rec.StateCode,
			rec.FTE.String(),
			rec.FTECorrected.String(),
			strconv.FormatBool(rec.FTEAdjusted),
		}
		for _, c := range models.SpendCategories {
			row = append(row, rec.Spend(c).String())
		}
		for _, c := range models.ShareCategories {
			row = append(row, rec.Share(c).String())
		}
		row = append(row, strconv.FormatBool(rec.SharesExcluded))
		for _, c := range models.SpendCategories {
			row = append(row, rec.PerFTE[c].String())
		}
		for _, c := range models.SpendCategories {
			row = append(row, rec.PerFTEReal[c].String())
		}
		for _, c := range models.SpendCategories {
			row = append(row, rec.Real[c].String())
		}
		for _, name := range extras {
			row = append(row, rec.Extra[name])
		}
		rows = append(rows, row)
	}
	return Table{Columns: cols, Rows: rows}
}

func extraColumns(records []models.CorrectedRecord) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for name := range rec.Extra {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SummaryTable is the flat statistical summary, one row per
// (metric, group, statistic name).
func SummaryTable(trends []models.TrendSummary) Table {
	cols := []string{
		"metric", "group_key", "group", "statistic", "aggregate", "status", "n",
		"slope", "intercept", "r", "r_squared", "p_value", "significance",
		"test_statistic", "effect_size",
		"first_year", "last_year", "first_value", "last_value", "percent_change",
		"note",
	}
	rows := make([][]string, 0, len(trends))
	for _, t := range trends {
		rows = append(rows, []string{
			t.Metric,
			t.GroupKey,
			t.Group,
			t.Statistic,
			string(t.Aggregate),
			string(t.Status),
			strconv.Itoa(t.N),
			t.Slope.String(),
			t.Intercept.String(),
			t.R.String(),
			t.RSquared.String(),
			t.PValue.String(),
			t.Tier,
			t.TestStatistic.String(),
			t.EffectSize.String(),
			formatYear(t.FirstYear),
			formatYear(t.LastYear),
			t.FirstValue.String(),
			t.LastValue.String(),
			t.PercentChange.String(),
			t.Note,
		})
	}
	return Table{Columns: cols, Rows: rows}
}

// SeriesTable flattens every yearly aggregate series into one row per point.
func SeriesTable(series []models.YearlySeries) Table {
	cols := []string{"metric", "group_key", "group", "aggregate", "year", "value", "n"}
	var rows [][]string
	for _, s := range series {
		for _, p := range s.Points {
			rows = append(rows, []string{
				s.Metric,
				s.GroupKey,
				s.Group,
				string(s.Statistic),
				strconv.Itoa(p.Year),
				formatFloat(p.Value),
				strconv.Itoa(p.N),
			})
		}
	}
	return Table{Columns: cols, Rows: rows}
}

// CorrectionsTable lists one row per corrected (institution, year).
func CorrectionsTable(corrections []models.Correction) Table {
	cols := []string{
		"institution_id", "institution_type", "year", "fte_original", "fte_corrected",
		"pre_ratio", "post_ratio", "growth_rate", "converged",
	}
	var rows [][]string
	for _, c := range corrections {
		for _, year := range c.Years {
			rows = append(rows, []string{
				c.InstitutionID,
				string(c.Type),
				strconv.Itoa(year),
				formatFloat(c.Original[year]),
				formatFloat(c.Corrected[year]),
				formatFloat(c.PreRatio),
				formatFloat(c.PostRatio),
				formatFloat(c.GrowthRate),
				strconv.FormatBool(c.Converged),
			})
		}
	}
	return Table{Columns: cols, Rows: rows}
}

// DiagnosticsTable lists every recovered problem in recording order.
func DiagnosticsTable(diags []models.Diagnostic) Table {
	cols := []string{"stage", "kind", "severity", "institution_id", "year", "message"}
	rows := make([][]string, 0, len(diags))
	for _, d := range diags {
		rows = append(rows, []string{
			d.Stage,
			string(d.Kind),
			string(d.Severity),
			d.InstitutionID,
			formatYear(d.Year),
			d.Message,
		})
	}
	return Table{Columns: cols, Rows: rows}
}

// DiagnosisTable is the per-year FTE change distribution.
func DiagnosisTable(changes []models.YearChange) Table {
	cols := []string{
		"year", "evaluable", "anomalous", "anomalous_pct", "mean_change_pct", "median_change_pct",
	}
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{
			strconv.Itoa(c.Year),
			strconv.Itoa(c.Evaluable),
			strconv.Itoa(c.Anomalous),
			formatFloat(c.AnomalousPct),
			c.MeanChangePct.String(),
			c.MedianChangePct.String(),
		})
	}
	return Table{Columns: cols, Rows: rows}
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ";")
}
