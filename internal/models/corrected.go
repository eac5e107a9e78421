package models

// CorrectedRecord is a PanelRecord enriched with the corrected FTE and every
// derived metric. It is produced once per run and not mutated afterwards.
type CorrectedRecord struct {
	PanelRecord

	FTECorrected NullFloat
	// FTEAdjusted is true when the anomaly rule replaced the raw FTE.
	FTEAdjusted bool

	PerFTE     map[SpendCategory]NullFloat
	PerFTEReal map[SpendCategory]NullFloat
	Real       map[SpendCategory]NullFloat

	// SharesExcluded marks rows whose shares failed the consistency checks; they
	// are skipped by share trend computations only.
	SharesExcluded bool
}

// Value returns the metric's value for this record.
func (r CorrectedRecord) Value(m Metric) NullFloat {
	switch m.Kind {
	case KindFTE:
		return r.FTE
	case KindFTECorrected:
		return r.FTECorrected
	case KindSpend:
		return r.Spend(m.Category)
	case KindShare:
		if r.SharesExcluded {
			return NullFloat{}
		}
		return r.Share(m.Category)
	case KindPerFTE:
		return r.PerFTE[m.Category]
	case KindPerFTEReal:
		return r.PerFTEReal[m.Category]
	case KindReal:
		return r.Real[m.Category]
	}
	return NullFloat{}
}

// AsPanelRecord returns the record as raw input with the corrected FTE in
// place of the reported one, so a corrected panel can be fed back through the
// corrector.
func (r CorrectedRecord) AsPanelRecord() PanelRecord {
	rec := r.PanelRecord
	rec.FTE = r.FTECorrected
	return rec
}

// Correction records one institution whose FTE series was replaced.
type Correction struct {
	InstitutionID string          `json:"institutionId"`
	Type          InstitutionType `json:"institutionType"`
	// PreRatio is fte[anomaly year] / fte[anomaly year - 1] as reported.
	PreRatio float64 `json:"preRatio"`
	// PostRatio is the same ratio after correction, i.e. 1 + GrowthRate.
	PostRatio  float64         `json:"postRatio"`
	GrowthRate float64         `json:"growthRate"`
	Years      []int           `json:"years"`
	Original   map[int]float64 `json:"original"`
	Corrected  map[int]float64 `json:"corrected"`
	// Converged is false when PostRatio still exceeds the threshold, in which
	// case re-running the correction would fire again.
	Converged bool `json:"converged"`
}
