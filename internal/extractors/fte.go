package extractors

import (
	"math"
	"sort"

	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/stats"
)

// StageDetect labels diagnostics raised while screening FTE series.
const StageDetect = "detect"

// FTEAnomaly is an institution whose FTE jumps by more than the threshold
// ratio between the year before the anomaly year and the anomaly year.
type FTEAnomaly struct {
	InstitutionID string
	Type          models.InstitutionType
	Baseline      float64
	Prior         float64
	Current       float64
	// Ratio is Current / Prior.
	Ratio float64
	// GrowthRate is (Prior - Baseline) / Baseline. Only set when Correctable.
	GrowthRate  float64
	Correctable bool
}

// FTEDetection is the outcome of screening every institution.
type FTEDetection struct {
	AnomalyYear int
	Threshold   float64
	Anomalies   []FTEAnomaly
	// Ineligible lists institutions lacking FTE in one of the three years the
	// rule needs. They pass through unmodified.
	Ineligible  []string
	Diagnostics []models.Diagnostic
}

// FTEExtractor screens FTE series for single-year jumps.
type FTEExtractor struct{}

// NewFTEExtractor constructs an FTE anomaly screener.
func NewFTEExtractor() *FTEExtractor {
	return &FTEExtractor{}
}

// Diagnose reports, for every year after the first, how institutions' FTE
// changed relative to the previous year. A change is anomalous when its
// magnitude exceeds threshold-1 (100% for the default threshold of 2).
func (e *FTEExtractor) Diagnose(records []models.PanelRecord, threshold float64) []models.YearChange {
	if len(records) == 0 {
		return nil
	}
	if threshold <= 1 {
		threshold = 2
	}
	limit := threshold - 1

	series := fteByInstitution(records)
	changes := make(map[int][]float64)
	years := make(map[int]struct{})
	for _, byYear := range series {
		for year, v := range byYear {
			years[year] = struct{}{}
			prev, ok := byYear[year-1]
			if !ok || !v.Valid || !prev.Valid || prev.Float64 == 0 {
				continue
			}
			changes[year] = append(changes[year], v.Float64/prev.Float64-1)
		}
	}

	ordered := make([]int, 0, len(years))
	for y := range years {
		ordered = append(ordered, y)
	}
	sort.Ints(ordered)
	if len(ordered) < 2 {
		return nil
	}

	out := make([]models.YearChange, 0, len(ordered)-1)
	for _, year := range ordered[1:] {
		values := changes[year]
		row := models.YearChange{Year: year, Evaluable: len(values)}
		for _, c := range values {
			if math.Abs(c) > limit {
				row.Anomalous++
			}
		}
		if len(values) > 0 {
			row.AnomalousPct = float64(row.Anomalous) / float64(len(values)) * 100
			mean, _ := stats.Mean(values)
			median, _ := stats.Median(values)
			row.MeanChangePct = models.Float(mean * 100)
			row.MedianChangePct = models.Float(median * 100)
		}
		out = append(out, row)
	}
	return out
}

// Detect applies the anomaly rule for anomalyYear. Institutions need FTE for
// anomalyYear-2, anomalyYear-1 and anomalyYear to be screened.
func (e *FTEExtractor) Detect(records []models.PanelRecord, anomalyYear int, threshold float64) FTEDetection {
	det := FTEDetection{AnomalyYear: anomalyYear, Threshold: threshold}
	var diags models.Diagnostics

	series := fteByInstitution(records)
	types := make(map[string]models.InstitutionType, len(series))
	for _, rec := range records {
		types[rec.InstitutionID] = rec.Type
	}

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		byYear := series[id]
		key := models.RecordKey{InstitutionID: id}
		baseline, okBase := positiveOrZero(byYear[anomalyYear-2])
		prior, okPrior := positiveOrZero(byYear[anomalyYear-1])
		current, okCurrent := positiveOrZero(byYear[anomalyYear])

		if !okBase || !okPrior || !okCurrent {
			det.Ineligible = append(det.Ineligible, id)
			diags.Addf(StageDetect, models.DiagIneligibleForCorrection, models.SeverityInfo, key,
				"fte missing for one of %d, %d, %d", anomalyYear-2, anomalyYear-1, anomalyYear)
			continue
		}
		if prior == 0 {
			det.Ineligible = append(det.Ineligible, id)
			diags.Addf(StageDetect, models.DiagZeroDenominator, models.SeverityWarning,
				models.RecordKey{InstitutionID: id, Year: anomalyYear - 1},
				"fte is zero, ratio %d/%d undefined", anomalyYear, anomalyYear-1)
			continue
		}

		ratio := current / prior
		if ratio <= threshold {
			continue
		}

		anomaly := FTEAnomaly{
			InstitutionID: id,
			Type:          types[id],
			Baseline:      baseline,
			Prior:         prior,
			Current:       current,
			Ratio:         ratio,
		}
		if baseline == 0 {
			diags.Addf(StageDetect, models.DiagUncorrectableAnomaly, models.SeverityWarning, key,
				"fte ratio %.2f exceeds %.2f but fte for %d is zero, no growth rate", ratio, threshold, anomalyYear-2)
		} else {
			anomaly.GrowthRate = (prior - baseline) / baseline
			anomaly.Correctable = true
		}
		det.Anomalies = append(det.Anomalies, anomaly)
	}

	det.Diagnostics = diags.Entries()
	return det
}

// Correctable returns the anomalies that carry a growth rate.
func (d FTEDetection) Correctable() []FTEAnomaly {
	out := make([]FTEAnomaly, 0, len(d.Anomalies))
	for _, a := range d.Anomalies {
		if a.Correctable {
			out = append(out, a)
		}
	}
	return out
}

func fteByInstitution(records []models.PanelRecord) map[string]map[int]models.NullFloat {
	series := make(map[string]map[int]models.NullFloat)
	for _, rec := range records {
		byYear, ok := series[rec.InstitutionID]
		if !ok {
			byYear = make(map[int]models.NullFloat)
			series[rec.InstitutionID] = byYear
		}
		byYear[rec.Year] = rec.FTE
	}
	return series
}

// positiveOrZero reports whether v is present and non-negative.
func positiveOrZero(v models.NullFloat) (float64, bool) {
	if !v.Valid || v.Float64 < 0 {
		return 0, false
	}
	return v.Float64, true
}
