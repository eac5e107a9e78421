package models

import "time"

// Statistic is the per-year aggregation applied across institutions.
type Statistic string

const (
	StatisticMedian Statistic = "median"
	StatisticMean   Statistic = "mean"
)

// YearValue is one point of a yearly aggregate series.
type YearValue struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
	// N is the number of institutions that contributed.
	N int `json:"n"`
}

// YearlySeries is the ordered per-year aggregate of a metric within a group.
type YearlySeries struct {
	Metric    string      `json:"metric"`
	GroupKey  string      `json:"groupKey"`
	Group     string      `json:"group"`
	Statistic Statistic   `json:"statistic"`
	Points    []YearValue `json:"points"`
}

// Value returns the aggregate for year, if present.
func (s YearlySeries) Value(year int) (float64, bool) {
	for _, p := range s.Points {
		if p.Year == year {
			return p.Value, true
		}
	}
	return 0, false
}

// TrendStatus explains whether a summary row carries usable statistics.
type TrendStatus string

const (
	TrendOK               TrendStatus = "ok"
	TrendInsufficientData TrendStatus = "insufficient_data"
	TrendNoVariance       TrendStatus = "no_variance"
	TrendExactFit         TrendStatus = "exact_fit"
)

// Summary statistic names.
const (
	StatLinearTrend    = "linear_trend"
	StatPairedChange   = "paired_first_last"
	StatGroupDiffFirst = "group_difference_first_year"
	StatGroupDiffLast  = "group_difference_last_year"
)

// TrendSummary is one row of the flat statistical summary: one per
// (metric, group, statistic name).
type TrendSummary struct {
	Metric    string      `json:"metric"`
	GroupKey  string      `json:"groupKey"`
	Group     string      `json:"group"`
	Statistic string      `json:"statistic"`
	Aggregate Statistic   `json:"aggregate"`
	Status    TrendStatus `json:"status"`

	Slope         NullFloat `json:"slope"`
	Intercept     NullFloat `json:"intercept"`
	R             NullFloat `json:"r"`
	RSquared      NullFloat `json:"rSquared"`
	PValue        NullFloat `json:"pValue"`
	Tier          string    `json:"significance"`
	TestStatistic NullFloat `json:"testStatistic"`
	EffectSize    NullFloat `json:"effectSize"`
	N             int       `json:"n"`

	FirstYear     int       `json:"firstYear"`
	LastYear      int       `json:"lastYear"`
	FirstValue    NullFloat `json:"firstValue"`
	LastValue     NullFloat `json:"lastValue"`
	PercentChange NullFloat `json:"percentChange"`

	Note string `json:"note,omitempty"`
}

// YearChange summarises the distribution of one year's FTE change across institutions.
type YearChange struct {
	Year            int
	Evaluable       int
	Anomalous       int
	AnomalousPct    float64
	MeanChangePct   NullFloat
	MedianChangePct NullFloat
}

// RunResult bundles everything a run produces for the export layer.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Records      int
	Institutions int
	Years        []int
	BaseYear     int
	Deflator     Deflator

	FTEDiagnosis []YearChange
	Corrections  []Correction
	Corrected    []CorrectedRecord
	Series       []YearlySeries
	Trends       []TrendSummary
	Diagnostics  []Diagnostic
}

// FindSeries returns the series for (metric, group key, group).
func (r *RunResult) FindSeries(metric, groupKey, group string) (YearlySeries, bool) {
	for _, s := range r.Series {
		if s.Metric == metric && s.GroupKey == groupKey && s.Group == group {
			return s, true
		}
	}
	return YearlySeries{}, false
}
