package engine

import (
	"github.com/edfinlab/spendtrends/internal/models"
)

// StageAdjust labels diagnostics raised by inflation adjustment.
const StageAdjust = "adjust"

// InflationAdjuster converts nominal dollar and per-FTE values into base-year dollars.
type InflationAdjuster struct {
	deflator models.Deflator
}

// NewInflationAdjuster copies deflator so later changes to the caller's map
// have no effect.
func NewInflationAdjuster(deflator models.Deflator) *InflationAdjuster {
	table := make(models.Deflator, len(deflator))
	for y, v := range deflator {
		table[y] = v
	}
	return &InflationAdjuster{deflator: table}
}

// Deflator returns the table in use.
func (a *InflationAdjuster) Deflator() models.Deflator { return a.deflator }

// BaseYear is the year whose dollars the real values are expressed in.
func (a *InflationAdjuster) BaseYear() int { return a.deflator.BaseYear() }

// Validate checks the table.
func (a *InflationAdjuster) Validate() error { return a.deflator.Validate() }

// Adjust sets <category>_real and <category>_per_fte_real for every record.
// Records whose year has no deflator keep those values missing and are
// reported; the index is never assumed to be 1.0.
func (a *InflationAdjuster) Adjust(records []models.CorrectedRecord) ([]models.CorrectedRecord, []models.Diagnostic) {
	var diags models.Diagnostics
	out := make([]models.CorrectedRecord, len(records))

	for i, rec := range records {
		rec.Real = make(map[models.SpendCategory]models.NullFloat, len(models.SpendCategories))
		rec.PerFTEReal = make(map[models.SpendCategory]models.NullFloat, len(models.SpendCategories))

		index, err := a.deflator.Lookup(rec.Year)
		if err != nil {
			diags.Addf(StageAdjust, models.DiagMissingDeflator, models.SeverityWarning, rec.Key(),
				"%v; real values skipped", err)
			out[i] = rec
			continue
		}
		for _, cat := range models.SpendCategories {
			if v, ok := rec.Spend(cat).Get(); ok {
				rec.Real[cat] = models.Float(v / index)
			}
			if v, ok := rec.PerFTE[cat].Get(); ok {
				rec.PerFTEReal[cat] = models.Float(v / index)
			}
		}
		out[i] = rec
	}
	return out, diags.Entries()
}
