// Package panel reads the raw institution-year finance panel from CSV or
// XLSX, resolves column aliases onto the canonical schema, and types every
// cell. Any schema violation aborts the load with a *SchemaError.
package panel

import (
	"fmt"
	"sort"

	"github.com/edfinlab/spendtrends/internal/models"
)

// SchemaError is a fatal problem with the input table. Row is the 1-based
// line in the source (header is line 1); zero when the error concerns the
// header.
type SchemaError struct {
	Column string
	Row    int
	Value  string
	Msg    string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Row == 0:
		return fmt.Sprintf("schema: column %q: %s", e.Column, e.Msg)
	case e.Value == "":
		return fmt.Sprintf("schema: line %d, column %q: %s", e.Row, e.Column, e.Msg)
	default:
		return fmt.Sprintf("schema: line %d, column %q, value %q: %s", e.Row, e.Column, e.Value, e.Msg)
	}
}

// Panel is the typed input table.
type Panel struct {
	Source  string
	Records []models.PanelRecord
	// Columns lists the canonical columns present in the source.
	Columns []string
	// ExtraColumns lists source columns outside the canonical schema, in source order.
	ExtraColumns []string
}

// New validates that (institution_id, year) is unique and wraps records.
func New(records []models.PanelRecord) (*Panel, error) {
	seen := make(map[models.RecordKey]int, len(records))
	for i, rec := range records {
		if prev, ok := seen[rec.Key()]; ok {
			return nil, &SchemaError{
				Column: models.ColumnYear,
				Row:    i + 2,
				Value:  fmt.Sprintf("%s/%d", rec.InstitutionID, rec.Year),
				Msg:    fmt.Sprintf("duplicate institution-year, first seen on line %d", prev+2),
			}
		}
		seen[rec.Key()] = i
	}
	return &Panel{Records: records}, nil
}

// Len returns the number of records.
func (p *Panel) Len() int { return len(p.Records) }

// Years returns the distinct years in ascending order.
func (p *Panel) Years() []int {
	set := make(map[int]struct{})
	for _, rec := range p.Records {
		set[rec.Year] = struct{}{}
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Institutions returns the distinct institution IDs in ascending order.
func (p *Panel) Institutions() []string {
	set := make(map[string]struct{})
	for _, rec := range p.Records {
		set[rec.InstitutionID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasColumn reports whether the source carried the canonical column.
func (p *Panel) HasColumn(name string) bool {
	for _, c := range p.Columns {
		if c == name {
			return true
		}
	}
	return false
}
