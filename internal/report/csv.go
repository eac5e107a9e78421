package report

import (
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/edfinlab/spendtrends/internal/models"
)

// Frame converts t into a string-typed DataFrame, one series per column.
func (t Table) Frame() dataframe.DataFrame {
	cols := make([]series.Series, len(t.Columns))
	for i, name := range t.Columns {
		values := make([]string, len(t.Rows))
		for j, row := range t.Rows {
			values[j] = row[i]
		}
		cols[i] = series.New(values, series.String, name)
	}
	return dataframe.New(cols...)
}

// WriteCSV writes t with a header row.
func (t Table) WriteCSV(w io.Writer) error {
	df := t.Frame()
	if df.Err != nil {
		return fmt.Errorf("build frame: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteCorrectedCSV writes the corrected, enriched panel.
func WriteCorrectedCSV(w io.Writer, records []models.CorrectedRecord) error {
	return CorrectedTable(records).WriteCSV(w)
}

// WriteSummaryCSV writes the flat statistical summary.
func WriteSummaryCSV(w io.Writer, trends []models.TrendSummary) error {
	return SummaryTable(trends).WriteCSV(w)
}

// WriteSeriesCSV writes the yearly aggregate series.
func WriteSeriesCSV(w io.Writer, series []models.YearlySeries) error {
	return SeriesTable(series).WriteCSV(w)
}

// WriteCorrectionsCSV writes the FTE correction audit trail.
func WriteCorrectionsCSV(w io.Writer, corrections []models.Correction) error {
	return CorrectionsTable(corrections).WriteCSV(w)
}

// WriteDiagnosticsCSV writes the diagnostics section.
func WriteDiagnosticsCSV(w io.Writer, diags []models.Diagnostic) error {
	return DiagnosticsTable(diags).WriteCSV(w)
}
