package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/edfinlab/spendtrends/internal/models"
)

// Workbook sheet names.
const (
	SheetRun         = "Run"
	SheetTrends      = "Trends"
	SheetYearly      = "Yearly"
	SheetDiagnosis   = "FTE Diagnosis"
	SheetCorrections = "Corrections"
	SheetDiagnostics = "Diagnostics"
	SheetCorrected   = "Corrected Panel"
)

// textColumns are written as strings even when they look numeric.
var textColumns = map[string]bool{
	"institution_id":   true,
	"institution_name": true,
	"state_code":       true,
	"group":            true,
	"note":             true,
	"message":          true,
}

// WriteWorkbook renders the results bundle as a multi-sheet .xlsx document.
func WriteWorkbook(w io.Writer, result *models.RunResult) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#2E86AB"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetRun); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRunSheet(f, result, header); err != nil {
		return err
	}

	sheets := []struct {
		name  string
		table Table
	}{
		{SheetTrends, SummaryTable(result.Trends)},
		{SheetYearly, SeriesTable(result.Series)},
		{SheetDiagnosis, DiagnosisTable(result.FTEDiagnosis)},
		{SheetCorrections, CorrectionsTable(result.Corrections)},
		{SheetDiagnostics, DiagnosticsTable(result.Diagnostics)},
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, s.table, header); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetCorrected); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetCorrected, err)
	}
	if err := streamSheet(f, SheetCorrected, CorrectedTable(result.Corrected), header); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRunSheet(f *excelize.File, result *models.RunResult, header int) error {
	rows := [][]interface{}{
		{"field", "value"},
		{"run_id", result.RunID},
		{"started_at", result.StartedAt.UTC().Format("2006-01-02T15:04:05Z")},
		{"records", result.Records},
		{"institutions", result.Institutions},
		{"years", joinYears(result.Years)},
		{"base_year", result.BaseYear},
		{"institutions_corrected", len(result.Corrections)},
		{"diagnostics", len(result.Diagnostics)},
	}
	for _, year := range result.Deflator.Years() {
		rows = append(rows, []interface{}{"deflator_" + strconv.Itoa(year), result.Deflator[year]})
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetRun, cell, &rows[i]); err != nil {
			return fmt.Errorf("write %s row %d: %w", SheetRun, i+1, err)
		}
	}
	if err := f.SetCellStyle(SheetRun, "A1", "B1", header); err != nil {
		return fmt.Errorf("style %s header: %w", SheetRun, err)
	}
	return f.SetColWidth(SheetRun, "A", "B", 28)
}

func writeSheet(f *excelize.File, sheet string, t Table, header int) error {
	head := toCells(t.Columns, nil)
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := toCells(row, t.Columns)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(t.Columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", header); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return f.SetPanes(sheet, frozenHeader())
}

// streamSheet writes large tables through the stream writer. Widths and panes
// must be set before the first row.
func streamSheet(f *excelize.File, sheet string, t Table, header int) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", sheet, err)
	}
	if err := sw.SetColWidth(1, len(t.Columns), 16); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	if err := sw.SetPanes(frozenHeader()); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}
	if err := sw.SetRow("A1", toCells(t.Columns, nil), excelize.RowOpts{StyleID: header}); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row, t.Columns)); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", sheet, err)
	}
	return nil
}

func frozenHeader() *excelize.Panes {
	return &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}
}

// toCells types a row for the workbook: numbers become numbers, empty strings
// become blank cells, and identifier-like columns stay text.
func toCells(row []string, columns []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		switch {
		case v == "":
			out[i] = nil
		case columns != nil && textColumns[columns[i]]:
			out[i] = v
		case v == "true" || v == "false":
			out[i] = v == "true"
		default:
			if n, ok := numeric(v); ok {
				out[i] = n
			} else {
				out[i] = v
			}
		}
	}
	return out
}

func numeric(v string) (float64, bool) {
	if strings.ContainsAny(v, "xXnN") {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
