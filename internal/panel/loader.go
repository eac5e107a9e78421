package panel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"

	"github.com/edfinlab/spendtrends/internal/models"
)

// Options tunes Load.
type Options struct {
	// Sheet names the worksheet of an .xlsx input; empty selects the first.
	Sheet string
}

// Load reads a panel from path, choosing the reader by file extension.
func Load(path string, opts Options) (*Panel, error) {
	var (
		p   *Panel
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		p, err = ReadXLSX(path, opts.Sheet)
	case ".csv", ".txt", "":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open panel: %w", openErr)
		}
		defer f.Close()
		p, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported panel format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	p.Source = path
	return p, nil
}

// ReadCSV parses a comma-separated panel with a header row.
func ReadCSV(r io.Reader) (*Panel, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read csv: %w", df.Err)
	}
	return fromFrame(df)
}

// ReadXLSX parses the named worksheet (or the first one) of an .xlsx file.
// The first non-empty row is the header.
func ReadXLSX(path, sheetName string) (*Panel, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	if len(file.Sheets) == 0 {
		return nil, fmt.Errorf("xlsx %s has no worksheets", path)
	}

	sheet := file.Sheets[0]
	if sheetName != "" {
		s, ok := file.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("xlsx %s has no worksheet %q", path, sheetName)
		}
		sheet = s
	}

	df, err := sheetToFrame(sheet)
	if err != nil {
		return nil, err
	}
	return fromFrame(df)
}

func sheetToFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		values := make([]string, len(row.Cells))
		blank := true
		for i, cell := range row.Cells {
			if cell == nil {
				continue
			}
			values[i] = strings.TrimSpace(cell.Value)
			if values[i] != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, values)
		}
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, &SchemaError{Msg: "worksheet is empty"}
	}

	headers := rows[0]
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(rows)-1)
	}
	for _, row := range rows[1:] {
		for i := range headers {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			columns[i] = append(columns[i], v)
		}
	}

	list := make([]series.Series, len(headers))
	for i, name := range headers {
		if name == "" {
			return dataframe.DataFrame{}, &SchemaError{Column: fmt.Sprintf("#%d", i+1), Msg: "empty header"}
		}
		list[i] = series.New(columns[i], series.String, name)
	}
	df := dataframe.New(list...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("build frame: %w", df.Err)
	}
	return df, nil
}

// fromFrame types a string-valued frame into panel records.
func fromFrame(df dataframe.DataFrame) (*Panel, error) {
	names := df.Names()
	index := make(map[string]string, len(names))
	var present, extras []string
	for _, name := range names {
		col, known := Canonicalize(name)
		if !known {
			extras = append(extras, col)
			index[col] = name
			continue
		}
		if prev, dup := index[col]; dup {
			return nil, &SchemaError{Column: col, Msg: fmt.Sprintf("provided by both %q and %q", prev, name)}
		}
		index[col] = name
		present = append(present, col)
	}
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &SchemaError{Column: col, Msg: "required column missing"}
		}
	}

	cells := make(map[string][]string, len(index))
	for col, name := range index {
		s := df.Col(name)
		values := make([]string, s.Len())
		for i := range values {
			e := s.Elem(i)
			if e.IsNA() {
				continue
			}
			values[i] = e.String()
		}
		cells[col] = values
	}
	cell := func(col string, i int) string {
		values, ok := cells[col]
		if !ok {
			return ""
		}
		return values[i]
	}

	records := make([]models.PanelRecord, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		line := i + 2
		rec, err := typeRow(cell, i, line)
		if err != nil {
			return nil, err
		}
		if len(extras) > 0 {
			rec.Extra = make(map[string]string, len(extras))
			for _, col := range extras {
				rec.Extra[col] = strings.TrimSpace(cell(col, i))
			}
		}
		records = append(records, rec)
	}

	p, err := New(records)
	if err != nil {
		return nil, err
	}
	p.Columns = present
	p.ExtraColumns = extras
	return p, nil
}

func typeRow(cell func(string, int) string, i, line int) (models.PanelRecord, error) {
	var rec models.PanelRecord

	rec.InstitutionID = normalizeID(cell(models.ColumnInstitutionID, i))
	if isMissing(rec.InstitutionID) {
		return rec, &SchemaError{Column: models.ColumnInstitutionID, Row: line, Msg: "missing value"}
	}

	rawYear := cell(models.ColumnYear, i)
	year, ok := parseYear(rawYear)
	if !ok {
		return rec, &SchemaError{Column: models.ColumnYear, Row: line, Value: rawYear, Msg: "not an integer year"}
	}
	rec.Year = year

	rawType := cell(models.ColumnInstitutionType, i)
	typ, err := models.ParseInstitutionType(rawType)
	if err != nil {
		return rec, &SchemaError{Column: models.ColumnInstitutionType, Row: line, Value: rawType, Msg: "expected Public or Private"}
	}
	rec.Type = typ

	numeric := []struct {
		col string
		dst *models.NullFloat
	}{
		{models.ColumnFTE, &rec.FTE},
		{models.ColumnAdminSpend, &rec.AdminSpend},
		{models.ColumnInstructionSpend, &rec.InstructionSpend},
		{models.ColumnResearchSpend, &rec.ResearchSpend},
		{models.ColumnStateAppropriation, &rec.StateAppropriation},
		{models.ColumnTotalSpend, &rec.TotalSpend},
		{models.ColumnAdminShare, &rec.AdminShare},
		{models.ColumnInstructionShare, &rec.InstructionShare},
		{models.ColumnResearchShare, &rec.ResearchShare},
	}
	for _, f := range numeric {
		raw := cell(f.col, i)
		v, ok := parseNumber(raw)
		if !ok {
			return rec, &SchemaError{Column: f.col, Row: line, Value: raw, Msg: "not a number"}
		}
		*f.dst = v
	}

	rec.InstitutionName = strings.TrimSpace(cell(models.ColumnInstitutionName, i))
	rec.StateCode = strings.ToUpper(strings.TrimSpace(cell(models.ColumnStateCode, i)))
	return rec, nil
}
