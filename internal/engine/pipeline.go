package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edfinlab/spendtrends/internal/config"
	"github.com/edfinlab/spendtrends/internal/extractors"
	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/panel"
	"github.com/edfinlab/spendtrends/internal/tracing"
	"github.com/edfinlab/spendtrends/internal/utils"
)

// DefaultShareTolerance bounds share reconciliation and the share-sum check.
const DefaultShareTolerance = 0.01

// Pipeline runs load-independent stages: diagnose, correct, derive, adjust, analyze.
type Pipeline struct {
	logger         *slog.Logger
	extractor      *extractors.FTEExtractor
	corrector      *Corrector
	adjuster       *InflationAdjuster
	analyzer       *TrendAnalyzer
	shareTolerance float64
	tracer         trace.Tracer
	now            func() time.Time
}

// NewPipeline constructs a pipeline. A nil corrector or analyzer falls back to
// the defaults; the adjuster is required because the deflator has no built-in value here.
func NewPipeline(
	logger *slog.Logger,
	corrector *Corrector,
	adjuster *InflationAdjuster,
	analyzer *TrendAnalyzer,
	shareTolerance float64,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	extractor := extractors.NewFTEExtractor()
	if corrector == nil {
		corrector = NewCorrector(logger, extractor, DefaultThreshold, DefaultAnomalyYear)
	}
	if analyzer == nil {
		analyzer = NewTrendAnalyzer(logger, AnalyzerOptions{})
	}
	if shareTolerance < 0 {
		shareTolerance = DefaultShareTolerance
	}
	return &Pipeline{
		logger:         logger,
		extractor:      extractor,
		corrector:      corrector,
		adjuster:       adjuster,
		analyzer:       analyzer,
		shareTolerance: shareTolerance,
		tracer:         tracing.Tracer(),
		now:            time.Now,
	}
}

// FromConfig wires every stage from cfg.
func FromConfig(logger *slog.Logger, cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	metrics := make([]models.Metric, 0, len(cfg.Analysis.Metrics))
	for _, name := range cfg.Analysis.Metrics {
		m, err := models.ParseMetric(name)
		if err != nil {
			return nil, utils.NewInputError("pipeline", "analysis metrics", err)
		}
		metrics = append(metrics, m)
	}
	overrides := make(map[string]models.Statistic, len(cfg.Analysis.StatisticOverrides))
	for name, s := range cfg.Analysis.StatisticOverrides {
		overrides[name] = models.Statistic(s)
	}

	analyzer := NewTrendAnalyzer(logger, AnalyzerOptions{
		Metrics:   metrics,
		GroupBy:   cfg.Analysis.GroupBy,
		Statistic: models.Statistic(cfg.Analysis.Statistic),
		Overrides: overrides,
		Comparison: Comparison{
			Key:    cfg.Analysis.Comparison.Key,
			GroupA: cfg.Analysis.Comparison.GroupA,
			GroupB: cfg.Analysis.Comparison.GroupB,
		},
		Paired: cfg.Analysis.Paired,
	})
	corrector := NewCorrector(logger, nil, cfg.Correction.Threshold, cfg.Correction.AnomalyYear)
	adjuster := NewInflationAdjuster(cfg.DeflatorTable())
	return NewPipeline(logger, corrector, adjuster, analyzer, cfg.Analysis.ShareTolerance), nil
}

// Run executes every stage over p and returns the results bundle. Per-row
// problems become diagnostics; only configuration problems and cancellation
// return an error.
func (pl *Pipeline) Run(ctx context.Context, p *panel.Panel) (result *models.RunResult, err error) {
	if pl.adjuster == nil {
		return nil, utils.NewInputError("pipeline", "inflation adjuster not configured", nil)
	}
	if p == nil || p.Len() == 0 {
		return nil, utils.NewInputError("pipeline", "panel is empty", nil)
	}
	if verr := pl.adjuster.Validate(); verr != nil {
		return nil, utils.NewInputError("pipeline", "invalid deflator", verr)
	}

	runID := uuid.NewString()
	logger := pl.logger.With(slog.String("run_id", runID))
	started := pl.now()

	ctx, span := pl.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("panel.records", p.Len()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	years := p.Years()
	result = &models.RunResult{
		RunID:        runID,
		StartedAt:    started,
		Records:      p.Len(),
		Institutions: len(p.Institutions()),
		Years:        years,
		BaseYear:     pl.adjuster.BaseYear(),
		Deflator:     pl.adjuster.Deflator(),
	}
	if missing := pl.adjuster.Deflator().Covers(years[0], years[len(years)-1]); len(missing) > 0 {
		logger.Warn("deflator does not cover every panel year", slog.Any("missing_years", missing))
	}

	var diags models.Diagnostics

	// Correct
	_, correctSpan := pl.tracer.Start(ctx, "pipeline.correct")
	result.FTEDiagnosis = pl.extractor.Diagnose(p.Records, pl.corrector.Threshold())
	shares := extractors.CheckShares(p.Records, pl.shareTolerance)
	diags.Merge(shares.Diagnostics)
	corrected := pl.corrector.Correct(shares.Records)
	diags.Merge(corrected.Diagnostics)
	for i := range corrected.Records {
		if shares.Excluded[corrected.Records[i].Key()] {
			corrected.Records[i].SharesExcluded = true
		}
	}
	result.Corrections = corrected.Corrections
	correctSpan.SetAttributes(
		attribute.Int("fte.corrected", len(corrected.Corrections)),
		attribute.Int("fte.ineligible", len(corrected.Ineligible)),
	)
	correctSpan.End()
	logger.Info("fte correction complete",
		slog.Int("records", p.Len()),
		slog.Int("corrected", len(corrected.Corrections)),
		slog.Int("ineligible", len(corrected.Ineligible)),
		slog.Int("shares_derived", shares.Derived),
		slog.Int("shares_excluded", len(shares.Excluded)),
	)
	if cerr := ctx.Err(); cerr != nil {
		return nil, utils.NewAppError("pipeline", "cancelled after correction", cerr)
	}

	// Derive and adjust
	_, adjustSpan := pl.tracer.Start(ctx, "pipeline.adjust")
	records, derived := DerivePerFTE(corrected.Records)
	diags.Merge(derived)
	records, adjusted := pl.adjuster.Adjust(records)
	diags.Merge(adjusted)
	adjustSpan.SetAttributes(attribute.Int("deflator.base_year", pl.adjuster.BaseYear()))
	adjustSpan.End()
	result.Corrected = records
	logger.Info("inflation adjustment complete",
		slog.Int("base_year", pl.adjuster.BaseYear()),
		slog.Int("missing_deflator", len(adjusted)),
		slog.Int("zero_fte", len(derived)),
	)
	if cerr := ctx.Err(); cerr != nil {
		return nil, utils.NewAppError("pipeline", "cancelled after adjustment", cerr)
	}

	// Analyze
	_, analyzeSpan := pl.tracer.Start(ctx, "pipeline.analyze")
	result.Series, result.Trends = pl.analyzer.Analyze(records)
	analyzeSpan.SetAttributes(
		attribute.Int("trend.series", len(result.Series)),
		attribute.Int("trend.rows", len(result.Trends)),
	)
	analyzeSpan.End()
	logger.Info("trend analysis complete",
		slog.Int("series", len(result.Series)),
		slog.Int("rows", len(result.Trends)),
	)

	result.Diagnostics = diags.Entries()
	result.FinishedAt = pl.now()
	span.SetAttributes(attribute.Int("diagnostics", len(result.Diagnostics)))
	logger.Info("pipeline run complete",
		slog.Int("diagnostics", len(result.Diagnostics)),
		slog.Duration("elapsed", result.FinishedAt.Sub(started)),
	)
	if cerr := ctx.Err(); cerr != nil {
		return nil, utils.NewAppError("pipeline", "cancelled", fmt.Errorf("after analysis: %w", cerr))
	}
	return result, nil
}
