package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/edfinlab/spendtrends/internal/models"
)

const rule = "================================================================================"

// ConsoleOptions tunes WriteConsole.
type ConsoleOptions struct {
	// AnomalyYear is highlighted in the FTE diagnosis section.
	AnomalyYear int
	// Lang selects number formatting; the zero value is English.
	Lang language.Tag
	// Artifacts lists written files, printed in the closing section.
	Artifacts []string
}

// WriteConsole prints a stage-by-stage textual summary of a run. Counts use
// the printer's digit grouping; years go through strconv to avoid it.
func WriteConsole(w io.Writer, result *models.RunResult, opts ConsoleOptions) error {
	lang := opts.Lang
	if lang == language.Und {
		lang = language.English
	}
	cw := &consoleWriter{w: w, p: message.NewPrinter(lang)}

	cw.section("Panel")
	cw.printf("Records: %d\n", result.Records)
	cw.printf("Institutions: %d\n", result.Institutions)
	if n := len(result.Years); n > 0 {
		cw.printf("Years: %s - %s (%d)\n", strconv.Itoa(result.Years[0]), strconv.Itoa(result.Years[n-1]), n)
	}

	cw.section("FTE anomaly diagnosis")
	tw := cw.table()
	cw.tprintf(tw, "Year\tAnomalous\tEvaluable\tShare\tMean change\tMedian change\t\n")
	for _, c := range result.FTEDiagnosis {
		mark := ""
		if c.Year == opts.AnomalyYear {
			mark = "  <- anomaly year"
		}
		cw.tprintf(tw, "%s\t%d\t%d\t%.1f%%\t%s\t%s\t%s\n",
			strconv.Itoa(c.Year), c.Anomalous, c.Evaluable, c.AnomalousPct,
			cw.pct(c.MeanChangePct), cw.pct(c.MedianChangePct), mark)
	}
	cw.flush(tw)

	cw.section("FTE correction")
	cw.printf("Institutions corrected: %d\n", len(result.Corrections))
	nonConvergent := 0
	for _, c := range result.Corrections {
		if !c.Converged {
			nonConvergent++
		}
	}
	if nonConvergent > 0 {
		cw.printf("Corrections still above threshold: %d\n", nonConvergent)
	}
	if len(result.Corrections) > 0 {
		tw = cw.table()
		cw.tprintf(tw, "Institution\tType\tPre ratio\tPost ratio\tGrowth\tYears\n")
		for _, c := range result.Corrections {
			cw.tprintf(tw, "%s\t%s\t%.2f\t%.2f\t%+.1f%%\t%s\n",
				c.InstitutionID, c.Type, c.PreRatio, c.PostRatio, c.GrowthRate*100, joinYears(c.Years))
		}
		cw.flush(tw)
	}

	cw.section("Inflation adjustment")
	if result.BaseYear != 0 {
		cw.printf("Deflator (%s = 1.00):\n", strconv.Itoa(result.BaseYear))
	}
	for _, year := range result.Deflator.Years() {
		v := result.Deflator[year]
		cw.printf("  %s: %.2f (cumulative inflation %+.1f%%)\n", strconv.Itoa(year), v, (v-1)*100)
	}

	cw.section("Trend analysis")
	tw = cw.table()
	cw.tprintf(tw, "Metric\tGroup\tTest\tSlope\tR²\tp\tSig\tChange\tStatus\n")
	for _, t := range result.Trends {
		cw.tprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Metric, t.Group, t.Statistic,
			cw.slope(t), cw.num(t.RSquared, "%.3f"), cw.num(t.PValue, "%.4f"),
			t.Tier, cw.pct(t.PercentChange), t.Status)
	}
	cw.flush(tw)

	cw.section("Diagnostics")
	counts := models.CountByKind(result.Diagnostics)
	if len(counts) == 0 {
		cw.printf("None\n")
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		cw.printf("  %-28s %d\n", k, counts[models.DiagnosticKind(k)])
	}

	if len(opts.Artifacts) > 0 {
		cw.section("Output files")
		for i, path := range opts.Artifacts {
			cw.printf("  %d. %s\n", i+1, path)
		}
	}
	return cw.err
}

// consoleWriter keeps the first write error so the report body stays linear.
type consoleWriter struct {
	w   io.Writer
	p   *message.Printer
	err error
}

func (c *consoleWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = c.p.Fprintf(c.w, format, args...)
}

func (c *consoleWriter) section(title string) {
	c.printf("\n%s\n%s\n%s\n", rule, strings.ToUpper(title), rule)
}

func (c *consoleWriter) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
}

func (c *consoleWriter) tprintf(tw *tabwriter.Writer, format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = c.p.Fprintf(tw, format, args...)
}

func (c *consoleWriter) flush(tw *tabwriter.Writer) {
	if c.err != nil {
		return
	}
	if err := tw.Flush(); err != nil {
		c.err = fmt.Errorf("flush console table: %w", err)
	}
}

func (c *consoleWriter) num(v models.NullFloat, format string) string {
	f, ok := v.Get()
	if !ok {
		return "NA"
	}
	return c.p.Sprintf(format, f)
}

// slope prints share trends in percentage points per year.
func (c *consoleWriter) slope(t models.TrendSummary) string {
	if m, err := models.ParseMetric(t.Metric); err == nil && m.IsShare() {
		f, ok := t.Slope.Get()
		if !ok {
			return "NA"
		}
		return c.p.Sprintf("%+.2f pp", f*100)
	}
	return c.num(t.Slope, "%.4g")
}

func (c *consoleWriter) pct(v models.NullFloat) string {
	f, ok := v.Get()
	if !ok {
		return "NA"
	}
	return c.p.Sprintf("%+.1f%%", f)
}
