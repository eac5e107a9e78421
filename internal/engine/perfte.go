package engine

import (
	"github.com/edfinlab/spendtrends/internal/models"
)

// StageDerive labels diagnostics raised while deriving per-FTE metrics.
const StageDerive = "derive"

// DerivePerFTE computes every <category>_per_fte from the corrected FTE. Rows
// without a positive corrected FTE get no per-FTE values and one diagnostic.
func DerivePerFTE(records []models.CorrectedRecord) ([]models.CorrectedRecord, []models.Diagnostic) {
	var diags models.Diagnostics
	out := make([]models.CorrectedRecord, len(records))

	for i, rec := range records {
		rec.PerFTE = make(map[models.SpendCategory]models.NullFloat, len(models.SpendCategories))
		fte, ok := rec.FTECorrected.Get()
		if !ok || fte <= 0 {
			diags.Addf(StageDerive, models.DiagZeroDenominator, models.SeverityInfo, rec.Key(),
				"fte_corrected is missing or not positive, per-FTE metrics skipped")
			out[i] = rec
			continue
		}
		for _, cat := range models.SpendCategories {
			if spend, ok := rec.Spend(cat).Get(); ok {
				rec.PerFTE[cat] = models.Float(spend / fte)
			}
		}
		out[i] = rec
	}
	return out, diags.Entries()
}
