package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/stats"
)

// Comparison selects two groups of one categorical column for the
// independent-groups test.
type Comparison struct {
	Key    string
	GroupA string
	GroupB string
}

func (c Comparison) enabled() bool {
	return c.Key != "" && c.GroupA != "" && c.GroupB != ""
}

// AnalyzerOptions configures a TrendAnalyzer.
type AnalyzerOptions struct {
	Metrics []models.Metric
	// GroupBy lists categorical columns; "" (or "all") is the ungrouped analysis.
	GroupBy    []string
	Statistic  models.Statistic
	Overrides  map[string]models.Statistic
	Comparison Comparison
	Paired     bool
}

// TrendAnalyzer turns a corrected panel into yearly aggregate series and a
// flat table of trend statistics.
type TrendAnalyzer struct {
	logger *slog.Logger
	opts   AnalyzerOptions
}

// NewTrendAnalyzer constructs an analyzer. An empty statistic defaults to the median.
func NewTrendAnalyzer(logger *slog.Logger, opts AnalyzerOptions) *TrendAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Statistic == "" {
		opts.Statistic = models.StatisticMedian
	}
	if len(opts.GroupBy) == 0 {
		opts.GroupBy = []string{""}
	}
	keys := make([]string, 0, len(opts.GroupBy))
	seen := make(map[string]bool)
	for _, k := range opts.GroupBy {
		if strings.EqualFold(k, "all") {
			k = ""
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	opts.GroupBy = keys
	return &TrendAnalyzer{logger: logger, opts: opts}
}

// StatisticFor returns the aggregate used for metric.
func (a *TrendAnalyzer) StatisticFor(metric string) models.Statistic {
	if s, ok := a.opts.Overrides[metric]; ok && s != "" {
		return s
	}
	return a.opts.Statistic
}

// groupData holds one group's metric values by year and institution.
type groupData struct {
	name   string
	byYear map[int]map[string]float64
}

func (g groupData) years() []int {
	years := make([]int, 0, len(g.byYear))
	for y, values := range g.byYear {
		if len(values) > 0 {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}

func (g groupData) values(year int) []float64 {
	ids := make([]string, 0, len(g.byYear[year]))
	for id := range g.byYear[year] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]float64, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.byYear[year][id])
	}
	return out
}

// Analyze computes, for every grouping key, metric and group, the yearly
// aggregate series plus a linear-trend row, an optional paired first/last
// year row, and, for the comparison key, first- and last-year group
// difference rows.
func (a *TrendAnalyzer) Analyze(records []models.CorrectedRecord) ([]models.YearlySeries, []models.TrendSummary) {
	var series []models.YearlySeries
	var trends []models.TrendSummary

	for _, key := range a.opts.GroupBy {
		for _, metric := range a.opts.Metrics {
			agg := a.StatisticFor(metric.Name)
			groups := collect(records, metric, key)

			for _, g := range groups {
				s := aggregate(g, metric.Name, key, agg)
				series = append(series, s)
				trends = append(trends, trendRow(s))
				if a.opts.Paired {
					trends = append(trends, pairedRow(g, metric.Name, key))
				}
			}

			if a.opts.Comparison.enabled() && a.opts.Comparison.Key == key {
				trends = append(trends, a.groupRows(groups, metric.Name)...)
			}
		}
	}

	a.logger.Debug("trend analysis complete",
		slog.Int("series", len(series)),
		slog.Int("rows", len(trends)),
	)
	return series, trends
}

func collect(records []models.CorrectedRecord, metric models.Metric, key string) []groupData {
	byName := make(map[string]*groupData)
	for _, rec := range records {
		v, ok := rec.Value(metric).Get()
		if !ok {
			continue
		}
		group, ok := rec.Category(key)
		if !ok {
			continue
		}
		g, ok := byName[group]
		if !ok {
			g = &groupData{name: group, byYear: make(map[int]map[string]float64)}
			byName[group] = g
		}
		if g.byYear[rec.Year] == nil {
			g.byYear[rec.Year] = make(map[string]float64)
		}
		g.byYear[rec.Year][rec.InstitutionID] = v
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]groupData, 0, len(names))
	for _, name := range names {
		out = append(out, *byName[name])
	}
	return out
}

func aggregate(g groupData, metric, key string, agg models.Statistic) models.YearlySeries {
	s := models.YearlySeries{Metric: metric, GroupKey: key, Group: g.name, Statistic: agg}
	for _, year := range g.years() {
		values := g.values(year)
		v, err := summarize(values, agg)
		if err != nil {
			continue
		}
		s.Points = append(s.Points, models.YearValue{Year: year, Value: v, N: len(values)})
	}
	return s
}

func summarize(values []float64, agg models.Statistic) (float64, error) {
	if agg == models.StatisticMean {
		return stats.Mean(values)
	}
	return stats.Median(values)
}

func trendRow(s models.YearlySeries) models.TrendSummary {
	row := models.TrendSummary{
		Metric:    s.Metric,
		GroupKey:  s.GroupKey,
		Group:     s.Group,
		Statistic: models.StatLinearTrend,
		Aggregate: s.Statistic,
		N:         len(s.Points),
		Tier:      stats.TierUndefined,
	}
	if len(s.Points) > 0 {
		row.FirstYear, row.LastYear = s.Points[0].Year, s.Points[len(s.Points)-1].Year
	}
	if len(s.Points) >= 2 {
		first, last := s.Points[0], s.Points[len(s.Points)-1]
		row.FirstValue, row.LastValue = models.Float(first.Value), models.Float(last.Value)
		row.PercentChange = percentChange(first.Value, last.Value)
	}

	x := make([]float64, len(s.Points))
	y := make([]float64, len(s.Points))
	for i, p := range s.Points {
		x[i] = float64(p.Year)
		y[i] = p.Value
	}

	trend, err := stats.LinearTrend(x, y)
	switch {
	case errors.Is(err, stats.ErrInsufficientData):
		row.Status = models.TrendInsufficientData
		row.Note = fmt.Sprintf("%d distinct year(s), at least 2 required", len(s.Points))
		return row
	case errors.Is(err, stats.ErrZeroVariance):
		row.Status = models.TrendNoVariance
		row.Slope = models.Float(0)
		row.Intercept = models.Float(trend.Intercept)
		row.Note = "identical values in every year; r² and p-value undefined"
		return row
	case err != nil:
		row.Status = models.TrendInsufficientData
		row.Note = err.Error()
		return row
	}

	row.Slope = models.Float(trend.Slope)
	row.Intercept = models.Float(trend.Intercept)
	row.R = models.Float(trend.R)
	row.RSquared = models.Float(trend.RSquared)
	if !trend.HasPValue {
		row.Status = models.TrendExactFit
		row.Note = "two years only; p-value undefined"
		return row
	}
	row.Status = models.TrendOK
	row.PValue = models.Float(trend.PValue)
	row.Tier = stats.Tier(trend.PValue, true)
	return row
}

// pairedRow compares each institution's value in the group's first and last
// year.
func pairedRow(g groupData, metric, key string) models.TrendSummary {
	row := models.TrendSummary{
		Metric:    metric,
		GroupKey:  key,
		Group:     g.name,
		Statistic: models.StatPairedChange,
		Aggregate: models.StatisticMean,
		Tier:      stats.TierUndefined,
	}
	years := g.years()
	if len(years) < 2 {
		row.Status = models.TrendInsufficientData
		row.Note = "fewer than 2 years"
		return row
	}
	first, last := years[0], years[len(years)-1]
	row.FirstYear, row.LastYear = first, last

	ids := make([]string, 0, len(g.byYear[first]))
	for id := range g.byYear[first] {
		if _, ok := g.byYear[last][id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	before := make([]float64, len(ids))
	after := make([]float64, len(ids))
	for i, id := range ids {
		before[i] = g.byYear[first][id]
		after[i] = g.byYear[last][id]
	}
	row.N = len(ids)
	if len(ids) > 0 {
		mb, _ := stats.Mean(before)
		ma, _ := stats.Mean(after)
		row.FirstValue, row.LastValue = models.Float(mb), models.Float(ma)
		row.PercentChange = percentChange(mb, ma)
	}

	res, err := stats.PairedTTest(before, after)
	switch {
	case errors.Is(err, stats.ErrInsufficientData):
		row.Status = models.TrendInsufficientData
		row.Note = fmt.Sprintf("%d institution(s) present in both %d and %d", len(ids), first, last)
		return row
	case errors.Is(err, stats.ErrZeroVariance):
		row.Status = models.TrendNoVariance
		row.Note = "identical change for every institution; test undefined"
		return row
	case err != nil:
		row.Status = models.TrendInsufficientData
		row.Note = err.Error()
		return row
	}
	row.Status = models.TrendOK
	row.TestStatistic = models.Float(res.Statistic)
	row.PValue = models.Float(res.PValue)
	row.Tier = stats.Tier(res.PValue, true)
	row.EffectSize = models.Float(res.EffectSize)
	row.Note = fmt.Sprintf("paired t, df=%.0f; effect size is dz", res.DF)
	return row
}

// groupRows runs Welch's t-test between the comparison groups in the first
// and last year both groups report.
func (a *TrendAnalyzer) groupRows(groups []groupData, metric string) []models.TrendSummary {
	cmp := a.opts.Comparison
	var ga, gb *groupData
	for i := range groups {
		switch groups[i].name {
		case cmp.GroupA:
			ga = &groups[i]
		case cmp.GroupB:
			gb = &groups[i]
		}
	}
	label := cmp.GroupA + " vs " + cmp.GroupB

	var common []int
	if ga != nil && gb != nil {
		for _, y := range ga.years() {
			if len(gb.byYear[y]) > 0 {
				common = append(common, y)
			}
		}
	}
	if len(common) == 0 {
		return []models.TrendSummary{{
			Metric:    metric,
			GroupKey:  cmp.Key,
			Group:     label,
			Statistic: models.StatGroupDiffFirst,
			Aggregate: models.StatisticMean,
			Status:    models.TrendInsufficientData,
			Tier:      stats.TierUndefined,
			Note:      "groups share no year",
		}}
	}

	rows := []models.TrendSummary{welchRow(*ga, *gb, metric, cmp.Key, label, models.StatGroupDiffFirst, common[0])}
	if last := common[len(common)-1]; last != common[0] {
		rows = append(rows, welchRow(*ga, *gb, metric, cmp.Key, label, models.StatGroupDiffLast, last))
	}
	return rows
}

func welchRow(ga, gb groupData, metric, key, label, name string, year int) models.TrendSummary {
	a, b := ga.values(year), gb.values(year)
	row := models.TrendSummary{
		Metric:    metric,
		GroupKey:  key,
		Group:     label,
		Statistic: name,
		Aggregate: models.StatisticMean,
		Tier:      stats.TierUndefined,
		N:         len(a) + len(b),
		FirstYear: year,
		LastYear:  year,
	}
	ma, _ := stats.Mean(a)
	mb, _ := stats.Mean(b)
	row.FirstValue, row.LastValue = models.Float(ma), models.Float(mb)
	row.PercentChange = percentChange(mb, ma)

	res, err := stats.WelchTTest(a, b)
	switch {
	case errors.Is(err, stats.ErrInsufficientData):
		row.Status = models.TrendInsufficientData
		row.Note = fmt.Sprintf("%s n=%d, %s n=%d; at least 2 each required", ga.name, len(a), gb.name, len(b))
		return row
	case errors.Is(err, stats.ErrZeroVariance):
		row.Status = models.TrendNoVariance
		row.Note = "no spread in either group; test undefined"
		return row
	case err != nil:
		row.Status = models.TrendInsufficientData
		row.Note = err.Error()
		return row
	}
	row.Status = models.TrendOK
	row.TestStatistic = models.Float(res.Statistic)
	row.PValue = models.Float(res.PValue)
	row.Tier = stats.Tier(res.PValue, true)
	row.EffectSize = models.Float(res.EffectSize)
	row.Note = fmt.Sprintf("Welch t, df=%.1f; first_value is %s mean, last_value is %s mean; effect size is Cohen's d",
		res.DF, ga.name, gb.name)
	return row
}

// percentChange is (to-from)/from·100, undefined when from is zero.
func percentChange(from, to float64) models.NullFloat {
	if from == 0 {
		return models.NullFloat{}
	}
	return models.Float((to - from) / from * 100)
}
