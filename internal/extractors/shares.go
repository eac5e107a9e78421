package extractors

import (
	"math"

	"github.com/edfinlab/spendtrends/internal/models"
)

// StageShares labels diagnostics raised by share reconciliation.
const StageShares = "shares"

// ShareReport is the outcome of CheckShares.
type ShareReport struct {
	// Records mirrors the input with missing shares derived from dollar fields.
	Records []models.PanelRecord
	// Excluded marks rows whose shares must not enter share trends.
	Excluded    map[models.RecordKey]bool
	Derived     int
	Diagnostics []models.Diagnostic
}

// CheckShares fills absent shares from category/total spending, compares
// reported shares with the dollar fields, and checks that the three shares sum
// to at most 1+tolerance. Failing rows are marked excluded; the input slice is
// not modified.
func CheckShares(records []models.PanelRecord, tolerance float64) ShareReport {
	report := ShareReport{
		Records:  make([]models.PanelRecord, len(records)),
		Excluded: make(map[models.RecordKey]bool),
	}
	var diags models.Diagnostics

	for i, rec := range records {
		key := rec.Key()
		total, hasTotal := rec.TotalSpend.Get()

		sum := 0.0
		for _, cat := range models.ShareCategories {
			reported := rec.Share(cat)
			spend, hasSpend := rec.Spend(cat).Get()

			var derived models.NullFloat
			if hasSpend && hasTotal && total != 0 {
				derived = models.Float(spend / total)
			}

			switch {
			case !reported.Valid && derived.Valid:
				setShare(&rec, cat, derived)
				reported = derived
				report.Derived++
			case reported.Valid && derived.Valid && math.Abs(reported.Float64-derived.Float64) > tolerance:
				diags.Addf(StageShares, models.DiagShareMismatch, models.SeverityWarning, key,
					"%s reported %.4f but dollar fields give %.4f", models.MetricName(models.KindShare, cat),
					reported.Float64, derived.Float64)
				report.Excluded[key] = true
			}
			if reported.Valid {
				sum += reported.Float64
			}
		}

		if hasTotal && total == 0 {
			diags.Addf(StageShares, models.DiagZeroDenominator, models.SeverityInfo, key,
				"total spending is zero, shares cannot be derived")
		}
		if sum > 1+tolerance {
			diags.Addf(StageShares, models.DiagShareSumExceeded, models.SeverityWarning, key,
				"shares sum to %.4f", sum)
			report.Excluded[key] = true
		}
		report.Records[i] = rec
	}

	report.Diagnostics = diags.Entries()
	return report
}

func setShare(rec *models.PanelRecord, cat models.SpendCategory, v models.NullFloat) {
	switch cat {
	case models.CategoryAdmin:
		rec.AdminShare = v
	case models.CategoryInstruction:
		rec.InstructionShare = v
	case models.CategoryResearch:
		rec.ResearchShare = v
	}
}
