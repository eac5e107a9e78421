package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/edfinlab/spendtrends/internal/config"
	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/tracing"
)

// maxParallelRenders bounds concurrent artifact rendering.
const maxParallelRenders = 4

// Exporter writes every configured artifact of a run. Artifacts are rendered
// into temporary files next to their destination and renamed into place only
// after all of them rendered, so a failed export leaves no partial output.
type Exporter struct {
	logger      *slog.Logger
	output      config.OutputConfig
	chart       ChartOptions
	anomalyYear int
	console     io.Writer
	tracer      trace.Tracer
}

// NewExporter builds an exporter from the output and analysis sections of cfg.
func NewExporter(logger *slog.Logger, cfg *config.Config) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	var chart ChartOptions
	if cmp := cfg.Analysis.Comparison; cmp.Enabled() {
		chart = ChartOptions{GroupKey: cmp.Key, GroupA: cmp.GroupA, GroupB: cmp.GroupB}
	}
	return &Exporter{
		logger:      logger,
		output:      cfg.Output,
		chart:       chart,
		anomalyYear: cfg.Correction.AnomalyYear,
		console:     os.Stdout,
		tracer:      tracing.Tracer(),
	}
}

// WithConsole redirects the console report.
func (e *Exporter) WithConsole(w io.Writer) *Exporter {
	e.console = w
	return e
}

type artifact struct {
	name   string
	file   string
	render func(io.Writer) error
}

func (e *Exporter) artifacts(result *models.RunResult) []artifact {
	all := []artifact{
		{"corrected", e.output.CorrectedFile, func(w io.Writer) error { return WriteCorrectedCSV(w, result.Corrected) }},
		{"summary", e.output.SummaryFile, func(w io.Writer) error { return WriteSummaryCSV(w, result.Trends) }},
		{"series", e.output.SeriesFile, func(w io.Writer) error { return WriteSeriesCSV(w, result.Series) }},
		{"corrections", e.output.CorrectionsFile, func(w io.Writer) error { return WriteCorrectionsCSV(w, result.Corrections) }},
		{"diagnostics", e.output.DiagnosticsFile, func(w io.Writer) error { return WriteDiagnosticsCSV(w, result.Diagnostics) }},
		{"workbook", e.output.WorkbookFile, func(w io.Writer) error { return WriteWorkbook(w, result) }},
		{"chart", e.output.ChartFile, func(w io.Writer) error { return RenderChart(w, result, e.chart) }},
	}
	enabled := all[:0]
	for _, a := range all {
		if a.file != "" {
			enabled = append(enabled, a)
		}
	}
	return enabled
}

// Export renders and writes every enabled artifact and returns their paths in
// a fixed order.
func (e *Exporter) Export(ctx context.Context, result *models.RunResult) (paths []string, err error) {
	if result == nil {
		return nil, errors.New("export: result is nil")
	}
	ctx, span := e.tracer.Start(ctx, "report.export", trace.WithAttributes(
		attribute.String("run.id", result.RunID),
		attribute.String("output.dir", e.output.Dir),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := os.MkdirAll(e.output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	started := time.Now()
	arts := e.artifacts(result)
	temps := make([]string, len(arts))
	cleanup := func() {
		for _, tmp := range temps {
			if tmp != "" {
				_ = os.Remove(tmp)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRenders)
	for i, a := range arts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tmp, err := e.renderTemp(a)
			temps[i] = tmp
			if err != nil {
				return fmt.Errorf("render %s: %w", a.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cleanup()
		return nil, err
	}

	paths = make([]string, 0, len(arts))
	for i, a := range arts {
		dest := filepath.Join(e.output.Dir, a.file)
		if err := os.Rename(temps[i], dest); err != nil {
			cleanup()
			return nil, fmt.Errorf("move %s into place: %w", a.name, err)
		}
		temps[i] = ""
		paths = append(paths, dest)
	}
	span.SetAttributes(attribute.Int("output.files", len(paths)))
	e.logger.Info("artifacts written",
		slog.String("run_id", result.RunID),
		slog.String("dir", e.output.Dir),
		slog.Int("files", len(paths)),
		slog.Duration("elapsed", time.Since(started)),
	)

	if e.output.Console && e.console != nil {
		err := WriteConsole(e.console, result, ConsoleOptions{AnomalyYear: e.anomalyYear, Artifacts: paths})
		if err != nil {
			e.logger.Warn("console report failed", slog.String("error", err.Error()))
		}
	}
	return paths, nil
}

func (e *Exporter) renderTemp(a artifact) (string, error) {
	f, err := os.CreateTemp(e.output.Dir, "."+a.file+".*.tmp")
	if err != nil {
		return "", err
	}
	if err := a.render(f); err != nil {
		f.Close()
		return f.Name(), err
	}
	if err := f.Close(); err != nil {
		return f.Name(), err
	}
	e.logger.Debug("artifact rendered", slog.String("artifact", a.name), slog.String("file", a.file))
	return f.Name(), nil
}
