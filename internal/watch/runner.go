// Package watch re-runs the pipeline when the input panel changes or on a
// cron schedule.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron"

	"github.com/edfinlab/spendtrends/internal/config"
)

// TriggerFunc performs one run.
type TriggerFunc func(ctx context.Context) error

// Runner coalesces startup, file-change and scheduled triggers into
// sequential runs. Triggers that arrive while a run is in progress collapse
// into a single follow-up run.
type Runner struct {
	logger  *slog.Logger
	cfg     config.WatchConfig
	input   string
	trigger TriggerFunc
	pending chan string
}

// NewRunner watches inputPath and calls trigger for every run.
func NewRunner(logger *slog.Logger, cfg config.WatchConfig, inputPath string, trigger TriggerFunc) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:  logger,
		cfg:     cfg,
		input:   inputPath,
		trigger: trigger,
		pending: make(chan string, 1),
	}
}

// Run performs an initial run, then blocks until ctx is cancelled. Failed runs
// are logged and do not stop the runner; only setup errors are returned.
func (r *Runner) Run(ctx context.Context) error {
	target, err := filepath.Abs(r.input)
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	// The directory is watched so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	scheduler := cron.New()
	if r.cfg.Schedule != "" {
		if err := scheduler.AddFunc(r.cfg.Schedule, func() { r.request("schedule") }); err != nil {
			return fmt.Errorf("invalid watch schedule %q: %w", r.cfg.Schedule, err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	workCtx, cancelWork := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.work(workCtx)
	}()

	r.logger.Info("watching input",
		slog.String("input", target),
		slog.String("schedule", r.cfg.Schedule),
		slog.Duration("debounce", r.cfg.Debounce),
	)
	r.request("startup")

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		cancelWork()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			r.logger.Debug("input changed", slog.String("op", event.Op.String()))
			if r.cfg.Debounce <= 0 {
				r.request("input changed")
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(r.cfg.Debounce)
			} else {
				debounce.Reset(r.cfg.Debounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			r.request("input changed")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}

// request queues a run unless one is already pending.
func (r *Runner) request(reason string) {
	select {
	case r.pending <- reason:
	default:
		r.logger.Debug("run already pending", slog.String("reason", reason))
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-r.pending:
			r.logger.Info("run triggered", slog.String("reason", reason))
			if err := r.trigger(ctx); err != nil {
				r.logger.Warn("triggered run failed", slog.String("reason", reason), slog.Any("error", err))
			}
		}
	}
}
