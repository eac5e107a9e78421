package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edfinlab/spendtrends/internal/models"
)

func defaultDeflator() models.Deflator {
	return models.Deflator{2018: 1.00, 2019: 1.02, 2020: 1.03, 2021: 1.08, 2022: 1.16, 2023: 1.20}
}

func TestDerivePerFTEUsesCorrectedFTE(t *testing.T) {
	rec := models.CorrectedRecord{
		PanelRecord: models.PanelRecord{
			InstitutionID: "x",
			Year:          2020,
			FTE:           models.Float(500),
			AdminSpend:    models.Float(1440000),
			TotalSpend:    models.Float(2880000),
		},
		FTECorrected: models.Float(144),
	}

	out, diags := DerivePerFTE([]models.CorrectedRecord{rec})
	require.Empty(t, diags)
	assert.InDelta(t, 10000.0, out[0].PerFTE[models.CategoryAdmin].Float64, 1e-9)
	assert.InDelta(t, 20000.0, out[0].PerFTE[models.CategoryTotal].Float64, 1e-9)
	assert.False(t, out[0].PerFTE[models.CategoryResearch].Valid)
	assert.Nil(t, rec.PerFTE, "input is not modified")
}

func TestDerivePerFTEZeroDenominator(t *testing.T) {
	records := []models.CorrectedRecord{
		{PanelRecord: models.PanelRecord{InstitutionID: "zero", Year: 2019, AdminSpend: models.Float(10)}, FTECorrected: models.Float(0)},
		{PanelRecord: models.PanelRecord{InstitutionID: "none", Year: 2019, AdminSpend: models.Float(10)}},
	}
	out, diags := DerivePerFTE(records)
	require.Len(t, diags, 2)
	assert.Equal(t, models.DiagZeroDenominator, diags[0].Kind)
	assert.False(t, out[0].PerFTE[models.CategoryAdmin].Valid)
	assert.Equal(t, models.Float(10), out[0].AdminSpend, "row stays in the panel")
}

func TestInflationRoundTrip(t *testing.T) {
	corrected := NewCorrector(nil, nil, 2.0, 2020).Correct(fixturePanel())
	derived, _ := DerivePerFTE(corrected.Records)
	adjusted, diags := NewInflationAdjuster(defaultDeflator()).Adjust(derived)
	require.Empty(t, diags)

	deflator := defaultDeflator()
	for _, rec := range adjusted {
		for _, cat := range models.SpendCategories {
			if nominal, ok := rec.PerFTE[cat].Get(); ok {
				deflated, ok := rec.PerFTEReal[cat].Get()
				require.True(t, ok)
				assert.InDelta(t, nominal, deflated*deflator[rec.Year], 1e-6*nominal)
			}
			if nominal, ok := rec.Spend(cat).Get(); ok {
				deflated, ok := rec.Real[cat].Get()
				require.True(t, ok)
				assert.InDelta(t, nominal, deflated*deflator[rec.Year], 1e-6*nominal)
			}
		}
	}
	assert.Equal(t, 2018, NewInflationAdjuster(deflator).BaseYear())
}

func TestInflationMissingYearFailsRecord(t *testing.T) {
	deflator := models.Deflator{2018: 1.0, 2019: 1.02}
	records := []models.CorrectedRecord{
		{
			PanelRecord: models.PanelRecord{InstitutionID: "x", Year: 2019, AdminSpend: models.Float(102)},
			PerFTE:      map[models.SpendCategory]models.NullFloat{models.CategoryAdmin: models.Float(10.2)},
		},
		{
			PanelRecord: models.PanelRecord{InstitutionID: "x", Year: 2020, AdminSpend: models.Float(500)},
			PerFTE:      map[models.SpendCategory]models.NullFloat{models.CategoryAdmin: models.Float(50)},
		},
	}

	out, diags := NewInflationAdjuster(deflator).Adjust(records)
	require.Len(t, diags, 1)
	assert.Equal(t, models.DiagMissingDeflator, diags[0].Kind)
	assert.Equal(t, 2020, diags[0].Year)

	assert.InDelta(t, 10.0, out[0].PerFTEReal[models.CategoryAdmin].Float64, 1e-12)
	assert.InDelta(t, 100.0, out[0].Real[models.CategoryAdmin].Float64, 1e-12)
	assert.False(t, out[1].PerFTEReal[models.CategoryAdmin].Valid, "no 1.0 substitution")
	assert.False(t, out[1].Real[models.CategoryAdmin].Valid)
}

func TestInflationAdjusterCopiesTable(t *testing.T) {
	deflator := defaultDeflator()
	adj := NewInflationAdjuster(deflator)
	deflator[2018] = 5
	assert.Equal(t, 1.0, adj.Deflator()[2018])
	assert.NoError(t, adj.Validate())
}
