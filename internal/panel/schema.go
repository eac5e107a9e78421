package panel

import (
	"math"
	"strconv"
	"strings"

	"github.com/edfinlab/spendtrends/internal/models"
)

// RequiredColumns must be present in every input.
var RequiredColumns = []string{
	models.ColumnInstitutionID,
	models.ColumnYear,
	models.ColumnInstitutionType,
	models.ColumnFTE,
	models.ColumnAdminSpend,
	models.ColumnInstructionSpend,
	models.ColumnTotalSpend,
}

// aliases maps lower-cased source headers onto canonical columns. IPEDS
// extracts use UNITID/INSTNM/STABBR and short spend names.
var aliases = map[string]string{
	"unitid":          models.ColumnInstitutionID,
	"id":              models.ColumnInstitutionID,
	"type":            models.ColumnInstitutionType,
	"control":         models.ColumnInstitutionType,
	"admin":           models.ColumnAdminSpend,
	"instruction":     models.ColumnInstructionSpend,
	"research":        models.ColumnResearchSpend,
	"state":           models.ColumnStateAppropriation,
	"state_approp":    models.ColumnStateAppropriation,
	"total":           models.ColumnTotalSpend,
	"admin_pct":       models.ColumnAdminShare,
	"instruction_pct": models.ColumnInstructionShare,
	"research_pct":    models.ColumnResearchShare,
	"instnm":          models.ColumnInstitutionName,
	"name":            models.ColumnInstitutionName,
	"stabbr":          models.ColumnStateCode,
}

var canonical = map[string]bool{
	models.ColumnInstitutionID:      true,
	models.ColumnYear:               true,
	models.ColumnInstitutionType:    true,
	models.ColumnFTE:                true,
	models.ColumnAdminSpend:         true,
	models.ColumnInstructionSpend:   true,
	models.ColumnResearchSpend:      true,
	models.ColumnStateAppropriation: true,
	models.ColumnTotalSpend:         true,
	models.ColumnAdminShare:         true,
	models.ColumnInstructionShare:   true,
	models.ColumnResearchShare:      true,
	models.ColumnInstitutionName:    true,
	models.ColumnStateCode:          true,
}

// Canonicalize resolves a source header to its canonical column name. The
// second result is false for columns outside the schema.
func Canonicalize(header string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(header))
	if canonical[name] {
		return name, true
	}
	if c, ok := aliases[name]; ok {
		return c, true
	}
	return strings.TrimSpace(header), false
}

// missingTokens are cell values read as "no value".
var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"nan":  true,
	"null": true,
	".":    true,
	"-":    true,
}

func isMissing(raw string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(raw))]
}

// parseNumber reads a numeric cell, tolerating thousands separators and a
// leading dollar sign.
func parseNumber(raw string) (models.NullFloat, bool) {
	if isMissing(raw) {
		return models.NullFloat{}, true
	}
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return models.NullFloat{}, false
	}
	return models.Float(v), true
}

// parseYear accepts integral values, including spreadsheet renderings such as "2019.0".
func parseYear(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// normalizeID trims the ID and drops a trailing ".0" left by spreadsheet
// numeric formatting.
func normalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	if strings.HasSuffix(id, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(id, ".0")); err == nil {
			return strings.TrimSuffix(id, ".0")
		}
	}
	return id
}
