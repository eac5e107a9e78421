package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NullFloat is a float64 that may be absent. The zero value is missing.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float wraps v as a present value. NaN and ±Inf are treated as missing.
func Float(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Float64: v, Valid: true}
}

// Get returns the value and whether it is present.
func (n NullFloat) Get() (float64, bool) {
	return n.Float64, n.Valid
}

// String renders the value for tabular export; missing values render empty.
func (n NullFloat) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'f', -1, 64)
}

// MarshalJSON renders missing values as null.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// InstitutionType classifies an institution's control.
type InstitutionType string

const (
	InstitutionPublic  InstitutionType = "Public"
	InstitutionPrivate InstitutionType = "Private"
)

// ParseInstitutionType accepts the canonical names case-insensitively plus the
// common IPEDS control labels.
func ParseInstitutionType(raw string) (InstitutionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "public", "1":
		return InstitutionPublic, nil
	case "private", "private not-for-profit", "private nonprofit", "2":
		return InstitutionPrivate, nil
	}
	return "", fmt.Errorf("unknown institution type %q", raw)
}

// PanelRecord is one (institution, year) observation as read from the input table.
type PanelRecord struct {
	InstitutionID      string
	Year               int
	Type               InstitutionType
	FTE                NullFloat
	AdminSpend         NullFloat
	InstructionSpend   NullFloat
	ResearchSpend      NullFloat
	StateAppropriation NullFloat
	TotalSpend         NullFloat
	AdminShare         NullFloat
	InstructionShare   NullFloat
	ResearchShare      NullFloat
	InstitutionName    string
	StateCode          string
	// Extra holds input columns outside the known schema so they can be used as
	// grouping keys and carried through to the corrected export.
	Extra map[string]string
}

// Key identifies the record within the panel.
func (r PanelRecord) Key() RecordKey {
	return RecordKey{InstitutionID: r.InstitutionID, Year: r.Year}
}

// RecordKey is the panel's primary key.
type RecordKey struct {
	InstitutionID string
	Year          int
}

// Spend returns the dollar field for category.
func (r PanelRecord) Spend(c SpendCategory) NullFloat {
	switch c {
	case CategoryAdmin:
		return r.AdminSpend
	case CategoryInstruction:
		return r.InstructionSpend
	case CategoryResearch:
		return r.ResearchSpend
	case CategoryState:
		return r.StateAppropriation
	case CategoryTotal:
		return r.TotalSpend
	}
	return NullFloat{}
}

// Share returns the reported share for category, if the category has one.
func (r PanelRecord) Share(c SpendCategory) NullFloat {
	switch c {
	case CategoryAdmin:
		return r.AdminShare
	case CategoryInstruction:
		return r.InstructionShare
	case CategoryResearch:
		return r.ResearchShare
	}
	return NullFloat{}
}

// Category returns the value of a categorical column by name.
func (r PanelRecord) Category(column string) (string, bool) {
	switch column {
	case "", GroupOverall:
		return GroupOverall, true
	case ColumnInstitutionType:
		return string(r.Type), r.Type != ""
	case ColumnStateCode:
		return r.StateCode, r.StateCode != ""
	case ColumnInstitutionName:
		return r.InstitutionName, r.InstitutionName != ""
	case ColumnInstitutionID:
		return r.InstitutionID, true
	case ColumnYear:
		return strconv.Itoa(r.Year), true
	}
	v, ok := r.Extra[column]
	return v, ok && v != ""
}

// SpendCategory enumerates the dollar fields.
type SpendCategory string

const (
	CategoryAdmin       SpendCategory = "admin"
	CategoryInstruction SpendCategory = "instruction"
	CategoryResearch    SpendCategory = "research"
	CategoryState       SpendCategory = "state"
	CategoryTotal       SpendCategory = "total"
)

// SpendCategories lists every dollar field in export order.
var SpendCategories = []SpendCategory{
	CategoryAdmin,
	CategoryInstruction,
	CategoryResearch,
	CategoryState,
	CategoryTotal,
}

// ShareCategories lists the categories that carry a share column.
var ShareCategories = []SpendCategory{
	CategoryAdmin,
	CategoryInstruction,
	CategoryResearch,
}

// Canonical column names.
const (
	ColumnInstitutionID      = "institution_id"
	ColumnYear               = "year"
	ColumnInstitutionType    = "institution_type"
	ColumnFTE                = "fte"
	ColumnAdminSpend         = "admin_spend"
	ColumnInstructionSpend   = "instruction_spend"
	ColumnResearchSpend      = "research_spend"
	ColumnStateAppropriation = "state_appropriation"
	ColumnTotalSpend         = "total_spend"
	ColumnAdminShare         = "admin_share"
	ColumnInstructionShare   = "instruction_share"
	ColumnResearchShare      = "research_share"
	ColumnInstitutionName    = "institution_name"
	ColumnStateCode          = "state_code"

	// GroupOverall is the group label used when no grouping key applies.
	GroupOverall = "All"
)
