package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/edfinlab/spendtrends/internal/models"
)

// Chart grid dimensions.
const (
	chartRows = 4
	chartCols = 3
)

var (
	colorA       = color.RGBA{R: 0x2E, G: 0x86, B: 0xAB, A: 0xFF}
	colorB       = color.RGBA{R: 0xA2, G: 0x3B, B: 0x72, A: 0xFF}
	shareColors  = []color.Color{colorA, colorB, color.RGBA{R: 0xF1, G: 0x8F, B: 0x01, A: 0xFF}}
	chartWidth   = vg.Points(1500)
	chartHeight  = vg.Points(1700)
	defaultTitle = "Higher Education Spending Trends"
)

// ChartOptions selects the two groups compared in the by-group panels.
type ChartOptions struct {
	GroupKey string
	GroupA   string
	GroupB   string
	Title    string
}

type chartLine struct {
	metric   string
	groupKey string
	group    string
	label    string
	color    color.Color
}

type chartPanel struct {
	title  string
	ylabel string
	scale  float64
	lines  []chartLine
}

// RenderChart draws the 4×3 trend grid as a PNG. Panels whose series are
// absent from the result are drawn empty with a "no data" title suffix.
func RenderChart(w io.Writer, result *models.RunResult, opts ChartOptions) error {
	if opts.Title == "" {
		opts.Title = defaultTitle
	}
	panels := chartPanels(opts, result.BaseYear)

	plots := make([][]*plot.Plot, chartRows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, chartCols)
		for c := range plots[r] {
			idx := r*chartCols + c
			var (
				p   *plot.Plot
				err error
			)
			if idx == len(panels) {
				p, err = changePanel(result, opts)
			} else {
				p, err = linePanel(result, panels[idx])
			}
			if err != nil {
				return fmt.Errorf("chart panel %d: %w", idx+1, err)
			}
			plots[r][c] = p
		}
	}
	plots[0][0].Title.Text = opts.Title + "\n" + plots[0][0].Title.Text

	img := vgimg.New(chartWidth, chartHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      chartRows,
		Cols:      chartCols,
		PadTop:    vg.Points(10),
		PadBottom: vg.Points(10),
		PadLeft:   vg.Points(10),
		PadRight:  vg.Points(10),
		PadX:      vg.Points(20),
		PadY:      vg.Points(20),
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("encode chart: %w", err)
	}
	return nil
}

// chartPanels lists the eleven line panels; the twelfth is the change bars.
func chartPanels(opts ChartOptions, baseYear int) []chartPanel {
	byGroup := func(metric string) []chartLine {
		return []chartLine{
			{metric: metric, groupKey: opts.GroupKey, group: opts.GroupA, label: opts.GroupA, color: colorA},
			{metric: metric, groupKey: opts.GroupKey, group: opts.GroupB, label: opts.GroupB, color: colorB},
		}
	}
	by := opts.GroupKey
	if by == "" {
		by = "group"
	}
	realLabel := "Real"
	if baseYear != 0 {
		realLabel = "Real (" + strconv.Itoa(baseYear) + "$)"
	}

	overall := make([]chartLine, 0, len(models.ShareCategories))
	for i, c := range models.ShareCategories {
		m := models.MustMetric(models.MetricName(models.KindShare, c))
		overall = append(overall, chartLine{
			metric: m.Name, group: models.GroupOverall, label: m.Label(), color: shareColors[i%len(shareColors)],
		})
	}

	return []chartPanel{
		{title: "Overall spending composition", ylabel: "Share (%)", scale: 0.01, lines: overall},
		{title: "Admin share by " + by, ylabel: "Share (%)", scale: 0.01, lines: byGroup("admin_share")},
		{title: "Instruction share by " + by, ylabel: "Share (%)", scale: 0.01, lines: byGroup("instruction_share")},
		{title: "Nominal admin per FTE", ylabel: "$ per FTE", scale: 1, lines: byGroup("admin_per_fte")},
		{title: "Nominal instruction per FTE", ylabel: "$ per FTE", scale: 1, lines: byGroup("instruction_per_fte")},
		{title: "Nominal total per FTE", ylabel: "$ per FTE", scale: 1, lines: byGroup("total_per_fte")},
		{title: realLabel + " admin per FTE", ylabel: "$ per FTE", scale: 1, lines: byGroup("admin_per_fte_real")},
		{title: realLabel + " instruction per FTE", ylabel: "$ per FTE", scale: 1, lines: byGroup("instruction_per_fte_real")},
		{title: realLabel + " total per FTE", ylabel: "$ per FTE", scale: 1, lines: byGroup("total_per_fte_real")},
		{title: realLabel + " admin spending", ylabel: "$ millions", scale: 1e6, lines: byGroup("admin_real")},
		{title: realLabel + " instruction spending", ylabel: "$ millions", scale: 1e6, lines: byGroup("instruction_real")},
	}
}

func newPanelPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(13)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func linePanel(result *models.RunResult, spec chartPanel) (*plot.Plot, error) {
	p := newPanelPlot(spec.title)
	p.X.Label.Text = "Year"
	p.Y.Label.Text = spec.ylabel
	p.X.Tick.Marker = plot.TickerFunc(yearTicks)

	drawn := 0
	for _, l := range spec.lines {
		s, ok := result.FindSeries(l.metric, l.groupKey, l.group)
		if !ok || len(s.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.Points))
		for i, pt := range s.Points {
			pts[i].X = float64(pt.Year)
			pts[i].Y = pt.Value / spec.scale
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = l.color
		line.Width = vg.Points(2)

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Color = l.color
		scatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(line, scatter)
		p.Legend.Add(l.label, line, scatter)
		drawn++
	}
	if drawn == 0 {
		p.Title.Text += " (no data)"
	}
	return p, nil
}

// changeMetrics are the bars of the change panel.
var changeMetrics = []struct {
	metric string
	label  string
}{
	{"admin_share", "Admin %"},
	{"instruction_share", "Instr. %"},
	{"admin_per_fte_real", "Admin/FTE real"},
	{"instruction_per_fte_real", "Instr./FTE real"},
}

// SeriesChange is the first-to-last percent change of an aggregate series.
func SeriesChange(s models.YearlySeries) models.NullFloat {
	if len(s.Points) < 2 {
		return models.NullFloat{}
	}
	first, last := s.Points[0].Value, s.Points[len(s.Points)-1].Value
	if first == 0 {
		return models.NullFloat{}
	}
	return models.Float((last - first) / first * 100)
}

// changeValues returns the bar heights for group and which of them were
// measured. Unmeasured slots stay zero and are labelled n/a.
func changeValues(result *models.RunResult, key, group string) (plotter.Values, []bool) {
	values := make(plotter.Values, len(changeMetrics))
	measured := make([]bool, len(changeMetrics))
	for i, cm := range changeMetrics {
		s, ok := result.FindSeries(cm.metric, key, group)
		if !ok {
			continue
		}
		if v, ok := SeriesChange(s).Get(); ok {
			values[i] = v
			measured[i] = true
		}
	}
	return values, measured
}

func changePanel(result *models.RunResult, opts ChartOptions) (*plot.Plot, error) {
	title := "First to last year change"
	if len(result.Years) > 0 {
		title = fmt.Sprintf("%d to %d change", result.Years[0], result.Years[len(result.Years)-1])
	}
	p := newPanelPlot(title)
	p.Y.Label.Text = "% change"

	width := vg.Points(18)
	for i, g := range []struct {
		name  string
		color color.Color
	}{{opts.GroupA, colorA}, {opts.GroupB, colorB}} {
		values, measured := changeValues(result, opts.GroupKey, g.name)
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return nil, err
		}
		bars.Color = g.color
		bars.LineStyle.Width = vg.Length(0)
		bars.Offset = vg.Length(2*i-1) * width / 2
		p.Add(bars)
		p.Legend.Add(g.name, bars)

		var missing plotter.XYLabels
		for j, ok := range measured {
			if !ok {
				missing.XYs = append(missing.XYs, plotter.XY{X: float64(j), Y: 0})
				missing.Labels = append(missing.Labels, "n/a")
			}
		}
		if len(missing.Labels) > 0 {
			na, err := plotter.NewLabels(missing)
			if err != nil {
				return nil, err
			}
			na.Offset = vg.Point{X: bars.Offset - width/2}
			p.Add(na)
		}
	}

	labels := make([]string, len(changeMetrics))
	for i, cm := range changeMetrics {
		labels[i] = cm.label
	}
	p.NominalX(labels...)
	p.Add(plotter.NewFunction(func(float64) float64 { return 0 }))
	return p, nil
}

// yearTicks labels whole years only.
func yearTicks(lo, hi float64) []plot.Tick {
	var ticks []plot.Tick
	for y := math.Ceil(lo); y <= hi; y++ {
		ticks = append(ticks, plot.Tick{Value: y, Label: strconv.Itoa(int(y))})
	}
	return ticks
}
