package engine

import (
	"log/slog"
	"sort"

	"github.com/edfinlab/spendtrends/internal/extractors"
	"github.com/edfinlab/spendtrends/internal/models"
)

// StageCorrect labels diagnostics raised by the corrector.
const StageCorrect = "correct"

// Default anomaly rule parameters.
const (
	DefaultThreshold   = 2.0
	DefaultAnomalyYear = 2020
)

// CorrectionResult is the corrected panel together with its audit trail.
type CorrectionResult struct {
	Records     []models.CorrectedRecord
	Corrections []models.Correction
	Ineligible  []string
	Diagnostics []models.Diagnostic
}

// Corrector replaces implausible FTE series from the anomaly year onwards with
// values extrapolated from the institution's own earlier growth rate.
type Corrector struct {
	logger      *slog.Logger
	extractor   *extractors.FTEExtractor
	threshold   float64
	anomalyYear int
}

// NewCorrector constructs a corrector. Non-positive parameters fall back to the defaults.
func NewCorrector(logger *slog.Logger, extractor *extractors.FTEExtractor, threshold float64, anomalyYear int) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = extractors.NewFTEExtractor()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if anomalyYear <= 0 {
		anomalyYear = DefaultAnomalyYear
	}
	return &Corrector{logger: logger, extractor: extractor, threshold: threshold, anomalyYear: anomalyYear}
}

// Threshold returns the configured ratio threshold.
func (c *Corrector) Threshold() float64 { return c.threshold }

// AnomalyYear returns the first year the rule may rewrite.
func (c *Corrector) AnomalyYear() int { return c.anomalyYear }

// Correct applies the anomaly rule. For a flagged institution with growth rate
// r, fte_corrected[y] = fte_corrected[y-1]·(1+r) for every y >= anomaly year,
// seeded with fte[anomaly year - 1]. Every other record keeps its raw FTE.
func (c *Corrector) Correct(records []models.PanelRecord) CorrectionResult {
	det := c.extractor.Detect(records, c.anomalyYear, c.threshold)
	var diags models.Diagnostics
	diags.Merge(det.Diagnostics)

	maxYear := 0
	yearsByInstitution := make(map[string][]int)
	for _, rec := range records {
		if rec.Year > maxYear {
			maxYear = rec.Year
		}
		if rec.Year >= c.anomalyYear {
			yearsByInstitution[rec.InstitutionID] = append(yearsByInstitution[rec.InstitutionID], rec.Year)
		}
	}

	replacements := make(map[models.RecordKey]float64)
	corrections := make([]models.Correction, 0, len(det.Anomalies))
	for _, anomaly := range det.Correctable() {
		years := yearsByInstitution[anomaly.InstitutionID]
		sort.Ints(years)

		growth := 1 + anomaly.GrowthRate
		extrapolated := make(map[int]float64, maxYear-c.anomalyYear+1)
		value := anomaly.Prior
		for y := c.anomalyYear; y <= maxYear; y++ {
			value *= growth
			extrapolated[y] = value
		}

		corr := models.Correction{
			InstitutionID: anomaly.InstitutionID,
			Type:          anomaly.Type,
			PreRatio:      anomaly.Ratio,
			PostRatio:     growth,
			GrowthRate:    anomaly.GrowthRate,
			Years:         years,
			Original:      make(map[int]float64, len(years)),
			Corrected:     make(map[int]float64, len(years)),
			Converged:     growth <= c.threshold,
		}
		for _, y := range years {
			key := models.RecordKey{InstitutionID: anomaly.InstitutionID, Year: y}
			replacements[key] = extrapolated[y]
			corr.Corrected[y] = extrapolated[y]
		}
		if !corr.Converged {
			diags.Addf(StageCorrect, models.DiagNonConvergentCorrection, models.SeverityWarning,
				models.RecordKey{InstitutionID: anomaly.InstitutionID},
				"corrected ratio %.3f still exceeds threshold %.3f; a second pass would fire again", growth, c.threshold)
		}
		corrections = append(corrections, corr)
	}

	byID := make(map[string]int, len(corrections))
	for i, corr := range corrections {
		byID[corr.InstitutionID] = i
	}

	out := make([]models.CorrectedRecord, len(records))
	for i, rec := range records {
		cr := models.CorrectedRecord{PanelRecord: rec, FTECorrected: rec.FTE}
		if v, ok := replacements[rec.Key()]; ok {
			cr.FTECorrected = models.Float(v)
			cr.FTEAdjusted = true
			if idx, ok := byID[rec.InstitutionID]; ok && rec.FTE.Valid {
				corrections[idx].Original[rec.Year] = rec.FTE.Float64
			}
		}
		out[i] = cr
	}

	for _, corr := range corrections {
		c.logger.Debug("fte corrected",
			slog.String("institution_id", corr.InstitutionID),
			slog.Float64("pre_ratio", corr.PreRatio),
			slog.Float64("post_ratio", corr.PostRatio),
			slog.Any("years", corr.Years),
		)
	}

	return CorrectionResult{
		Records:     out,
		Corrections: corrections,
		Ineligible:  det.Ineligible,
		Diagnostics: diags.Entries(),
	}
}
