package extractors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edfinlab/spendtrends/internal/models"
)

func fteRecords(id string, typ models.InstitutionType, values map[int]float64) []models.PanelRecord {
	out := make([]models.PanelRecord, 0, len(values))
	for year, v := range values {
		out = append(out, models.PanelRecord{InstitutionID: id, Year: year, Type: typ, FTE: models.Float(v)})
	}
	return out
}

func TestFTEExtractorDetect(t *testing.T) {
	var records []models.PanelRecord
	records = append(records, fteRecords("jump", models.InstitutionPublic, map[int]float64{2018: 100, 2019: 120, 2020: 500, 2021: 510})...)
	records = append(records, fteRecords("steady", models.InstitutionPrivate, map[int]float64{2018: 90, 2019: 100, 2020: 150})...)
	records = append(records, fteRecords("late", models.InstitutionPrivate, map[int]float64{2020: 50, 2021: 60})...)
	records = append(records, fteRecords("zerobase", models.InstitutionPublic, map[int]float64{2018: 0, 2019: 10, 2020: 40})...)

	det := NewFTEExtractor().Detect(records, 2020, 2.0)

	require.Len(t, det.Anomalies, 2)
	jump := det.Anomalies[0]
	assert.Equal(t, "jump", jump.InstitutionID)
	assert.True(t, jump.Correctable)
	assert.InDelta(t, 0.2, jump.GrowthRate, 1e-12)
	assert.InDelta(t, 500.0/120.0, jump.Ratio, 1e-12)
	assert.Equal(t, models.InstitutionPublic, jump.Type)

	zero := det.Anomalies[1]
	assert.Equal(t, "zerobase", zero.InstitutionID)
	assert.False(t, zero.Correctable)
	assert.Len(t, det.Correctable(), 1)

	assert.Equal(t, []string{"late"}, det.Ineligible)
	counts := models.CountByKind(det.Diagnostics)
	assert.Equal(t, 1, counts[models.DiagIneligibleForCorrection])
	assert.Equal(t, 1, counts[models.DiagUncorrectableAnomaly])
}

func TestFTEExtractorDetectRatioAtThresholdPasses(t *testing.T) {
	records := fteRecords("edge", models.InstitutionPublic, map[int]float64{2018: 50, 2019: 100, 2020: 200})
	det := NewFTEExtractor().Detect(records, 2020, 2.0)
	assert.Empty(t, det.Anomalies)
	assert.Empty(t, det.Diagnostics)
}

func TestFTEExtractorDetectZeroPrior(t *testing.T) {
	records := fteRecords("z", models.InstitutionPublic, map[int]float64{2018: 10, 2019: 0, 2020: 40})
	det := NewFTEExtractor().Detect(records, 2020, 2.0)
	assert.Empty(t, det.Anomalies)
	assert.Equal(t, []string{"z"}, det.Ineligible)
	require.Len(t, det.Diagnostics, 1)
	assert.Equal(t, models.DiagZeroDenominator, det.Diagnostics[0].Kind)
}

func TestFTEExtractorDiagnose(t *testing.T) {
	var records []models.PanelRecord
	records = append(records, fteRecords("a", models.InstitutionPublic, map[int]float64{2018: 100, 2019: 110, 2020: 400})...)
	records = append(records, fteRecords("b", models.InstitutionPublic, map[int]float64{2018: 100, 2019: 100, 2020: 105})...)
	records = append(records, fteRecords("c", models.InstitutionPrivate, map[int]float64{2019: 100, 2020: 350})...)

	rows := NewFTEExtractor().Diagnose(records, 2.0)
	require.Len(t, rows, 2)

	y2019 := rows[0]
	assert.Equal(t, 2019, y2019.Year)
	assert.Equal(t, 2, y2019.Evaluable)
	assert.Zero(t, y2019.Anomalous)
	assert.InDelta(t, 5.0, y2019.MeanChangePct.Float64, 1e-9)

	y2020 := rows[1]
	assert.Equal(t, 2020, y2020.Year)
	assert.Equal(t, 3, y2020.Evaluable)
	assert.Equal(t, 2, y2020.Anomalous)
	assert.InDelta(t, 200.0/3.0, y2020.AnomalousPct, 1e-9)
	assert.InDelta(t, 250.0, y2020.MedianChangePct.Float64, 1e-9)
}

func TestCheckShares(t *testing.T) {
	records := []models.PanelRecord{
		{
			InstitutionID: "derive", Year: 2019,
			AdminSpend: models.Float(20), InstructionSpend: models.Float(50), ResearchSpend: models.Float(10),
			TotalSpend: models.Float(100),
		},
		{
			InstitutionID: "overflow", Year: 2019,
			AdminShare: models.Float(0.5), InstructionShare: models.Float(0.4), ResearchShare: models.Float(0.2),
		},
		{
			InstitutionID: "mismatch", Year: 2019,
			AdminSpend: models.Float(20), TotalSpend: models.Float(100), AdminShare: models.Float(0.35),
		},
		{
			InstitutionID: "ok", Year: 2019,
			AdminSpend: models.Float(20), TotalSpend: models.Float(100), AdminShare: models.Float(0.205),
		},
	}

	report := CheckShares(records, 0.01)
	require.Len(t, report.Records, 4)

	derived := report.Records[0]
	assert.InDelta(t, 0.2, derived.AdminShare.Float64, 1e-12)
	assert.InDelta(t, 0.5, derived.InstructionShare.Float64, 1e-12)
	assert.InDelta(t, 0.1, derived.ResearchShare.Float64, 1e-12)
	assert.Equal(t, 3, report.Derived)
	assert.False(t, records[0].AdminShare.Valid, "input must not be modified")

	assert.True(t, report.Excluded[models.RecordKey{InstitutionID: "overflow", Year: 2019}])
	assert.True(t, report.Excluded[models.RecordKey{InstitutionID: "mismatch", Year: 2019}])
	assert.False(t, report.Excluded[models.RecordKey{InstitutionID: "ok", Year: 2019}])
	assert.False(t, report.Excluded[models.RecordKey{InstitutionID: "derive", Year: 2019}])

	counts := models.CountByKind(report.Diagnostics)
	assert.Equal(t, 1, counts[models.DiagShareSumExceeded])
	assert.Equal(t, 1, counts[models.DiagShareMismatch])
}

func TestCheckSharesSumWithinBound(t *testing.T) {
	records := []models.PanelRecord{{
		InstitutionID: "x", Year: 2020,
		AdminShare: models.Float(0.3), InstructionShare: models.Float(0.6), ResearchShare: models.Float(0.105),
	}}
	report := CheckShares(records, 0.01)
	assert.Empty(t, report.Excluded)
	assert.Empty(t, report.Diagnostics)
}
