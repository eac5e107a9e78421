package services

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edfinlab/spendtrends/internal/config"
	"github.com/edfinlab/spendtrends/internal/engine"
	"github.com/edfinlab/spendtrends/internal/metrics"
	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/panel"
	"github.com/edfinlab/spendtrends/internal/utils"
)

// p95 is logged every latencyLogEvery completed runs.
const latencyLogEvery = 20

// LoadFunc reads the raw panel.
type LoadFunc func(path string, opts panel.Options) (*panel.Panel, error)

// Exporter persists a run's artifacts and returns their paths.
type Exporter interface {
	Export(ctx context.Context, result *models.RunResult) ([]string, error)
}

// RunListener is told about every finished run. result is nil when the run failed.
type RunListener interface {
	RunCompleted(sample utils.RunSample, result *models.RunResult, artifacts []string)
}

// RunService executes load → pipeline → export and records the outcome.
// Runs are serialised; a trigger arriving mid-run waits for it to finish.
type RunService struct {
	logger    *slog.Logger
	input     config.InputConfig
	load      LoadFunc
	pipeline  *engine.Pipeline
	exporter  Exporter
	history   *utils.RunHistory
	listeners []RunListener

	mu sync.Mutex
}

// NewRunService constructs the run facade. A nil exporter skips the export step.
func NewRunService(logger *slog.Logger, input config.InputConfig, pipeline *engine.Pipeline, exporter Exporter) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		logger:   logger,
		input:    input,
		load:     panel.Load,
		pipeline: pipeline,
		exporter: exporter,
		history:  utils.NewRunHistory(256),
	}
}

// WithLoader replaces the panel reader.
func (s *RunService) WithLoader(load LoadFunc) *RunService {
	if load != nil {
		s.load = load
	}
	return s
}

// AddListener registers l for run notifications.
func (s *RunService) AddListener(l RunListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// History exposes recent run samples.
func (s *RunService) History() *utils.RunHistory {
	return s.history
}

// Run performs one complete run. Input problems (missing file, schema errors,
// invalid deflator) are returned as input AppErrors.
func (s *RunService) Run(ctx context.Context) (*models.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, artifacts, err := s.run(ctx)
	duration := time.Since(start)

	sample := utils.RunSample{Started: start, Duration: duration, Outcome: metrics.OutcomeSuccess}
	if result != nil {
		sample.RunID = result.RunID
	} else {
		sample.RunID = uuid.NewString()
	}
	if err != nil {
		sample.Outcome = metrics.OutcomeError
		metrics.ObserveRun(duration, metrics.OutcomeError)
		s.logger.Error("run failed", slog.String("input", s.input.Path), slog.Any("error", err))
		result = nil
	} else {
		metrics.ObserveRun(duration, metrics.OutcomeSuccess)
		metrics.ObserveResult(result)
	}

	s.history.Record(sample)
	if count := s.history.Count(); count >= latencyLogEvery && count%latencyLogEvery == 0 {
		s.logger.Info("run latency", slog.Duration("p95", s.history.Percentile(95)), slog.Int("samples", count))
	}
	for _, l := range s.listeners {
		l.RunCompleted(sample, result, artifacts)
	}
	return result, err
}

func (s *RunService) run(ctx context.Context) (*models.RunResult, []string, error) {
	if s.pipeline == nil {
		return nil, nil, utils.NewAppError("run", "pipeline not configured", nil)
	}

	p, err := s.load(s.input.Path, panel.Options{Sheet: s.input.Sheet})
	if err != nil {
		var schemaErr *panel.SchemaError
		if errors.As(err, &schemaErr) || errors.Is(err, fs.ErrNotExist) {
			return nil, nil, utils.NewInputError("load", s.input.Path, err)
		}
		return nil, nil, utils.NewAppError("load", s.input.Path, err)
	}
	s.logger.Info("panel loaded",
		slog.String("input", s.input.Path),
		slog.Int("records", p.Len()),
		slog.Int("institutions", len(p.Institutions())),
		slog.Bool("sharesReported", p.HasColumn(models.ColumnAdminShare)),
	)

	result, err := s.pipeline.Run(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if s.exporter == nil {
		return result, nil, nil
	}
	artifacts, err := s.exporter.Export(ctx, result)
	if err != nil {
		return nil, nil, utils.NewAppError("export", "write artifacts", err)
	}
	return result, artifacts, nil
}

// DurationP95 returns the p95 duration of recent runs.
func (s *RunService) DurationP95() time.Duration {
	return s.history.Percentile(95)
}
