package engine

import (
	"fmt"

	"github.com/edfinlab/spendtrends/internal/models"
)

// institution builds one institution's panel rows. fte maps year to FTE;
// spending grows by growth per year from the base amounts in 2018.
func institution(id string, typ models.InstitutionType, fte map[int]float64, admin, instruction, growth float64) []models.PanelRecord {
	var out []models.PanelRecord
	for year := 2018; year <= 2023; year++ {
		v, ok := fte[year]
		if !ok {
			continue
		}
		scale := 1.0
		for i := 2018; i < year; i++ {
			scale *= 1 + growth
		}
		a := admin * scale
		in := instruction * scale
		total := (a + in) / 0.8
		out = append(out, models.PanelRecord{
			InstitutionID:    id,
			Year:             year,
			Type:             typ,
			FTE:              models.Float(v),
			AdminSpend:       models.Float(a),
			InstructionSpend: models.Float(in),
			ResearchSpend:    models.Float(total * 0.05),
			TotalSpend:       models.Float(total),
			InstitutionName:  fmt.Sprintf("Institution %s", id),
			StateCode:        "CA",
		})
	}
	return out
}

func series(values ...float64) map[int]float64 {
	out := make(map[int]float64, len(values))
	for i, v := range values {
		out[2018+i] = v
	}
	return out
}

func fixturePanel() []models.PanelRecord {
	var records []models.PanelRecord
	records = append(records, institution("pub-jump", models.InstitutionPublic, series(100, 120, 500, 520, 540, 560), 2e6, 5e6, 0.03)...)
	records = append(records, institution("pub-a", models.InstitutionPublic, series(1000, 1010, 1020, 1030, 1040, 1050), 3e6, 8e6, 0.04)...)
	records = append(records, institution("pub-b", models.InstitutionPublic, series(800, 810, 820, 830, 840, 850), 2.5e6, 6e6, 0.05)...)
	records = append(records, institution("priv-a", models.InstitutionPrivate, series(400, 404, 408, 412, 416, 420), 4e6, 7e6, 0.06)...)
	records = append(records, institution("priv-b", models.InstitutionPrivate, series(300, 303, 306, 309, 312, 315), 3.5e6, 5e6, 0.07)...)
	records = append(records, institution("priv-c", models.InstitutionPrivate, series(500, 505, 510, 515, 520, 525), 5e6, 9e6, 0.065)...)
	return records
}

func recordFor(records []models.CorrectedRecord, id string, year int) models.CorrectedRecord {
	for _, r := range records {
		if r.InstitutionID == id && r.Year == year {
			return r
		}
	}
	panic(fmt.Sprintf("no record %s/%d", id, year))
}
