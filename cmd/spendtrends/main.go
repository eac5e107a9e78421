package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edfinlab/spendtrends/internal/api"
	"github.com/edfinlab/spendtrends/internal/config"
	"github.com/edfinlab/spendtrends/internal/engine"
	"github.com/edfinlab/spendtrends/internal/metrics"
	"github.com/edfinlab/spendtrends/internal/report"
	"github.com/edfinlab/spendtrends/internal/services"
	"github.com/edfinlab/spendtrends/internal/tracing"
	"github.com/edfinlab/spendtrends/internal/utils"
	"github.com/edfinlab/spendtrends/internal/watch"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		inputPath  string
		outputDir  string
		watchMode  bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&inputPath, "input", "", "Panel file (.csv or .xlsx); overrides input.path")
	flag.StringVar(&outputDir, "output", "", "Output directory; overrides output.dir")
	flag.BoolVar(&watchMode, "watch", false, "Keep running and re-run when the input changes")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		return utils.ExitInput
	}
	if inputPath != "" {
		cfg.Input.Path = inputPath
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if watchMode {
		cfg.Watch.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("error", err))
		return utils.ExitInput
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting spendtrends",
		slog.String("version", version),
		slog.String("input", cfg.Input.Path),
		slog.String("output", cfg.Output.Dir),
		slog.Bool("watch", cfg.Watch.Enabled),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return utils.ExitRuntime
	}

	shutdownTracing, err := tracing.Setup(tracing.Options{
		Enabled:  cfg.Tracing.Enabled,
		Exporter: cfg.Tracing.Exporter,
		Version:  version,
	})
	if err != nil {
		logger.Error("failed to set up tracing", slog.Any("error", err))
		return utils.ExitRuntime
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	pipeline, err := engine.FromConfig(logger, cfg)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		return utils.ExitCode(err)
	}
	exporter := report.NewExporter(logger, cfg)
	runService := services.NewRunService(logger, cfg.Input, pipeline, exporter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Watch.Enabled {
		_, runErr := runService.Run(ctx)
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath, prometheus.DefaultGatherer); err != nil {
			logger.Warn("metrics textfile not written", slog.Any("error", err))
		}
		return utils.ExitCode(runErr)
	}
	return serve(ctx, stop, logger, cfg, runService)
}

// serve runs watch mode until a signal arrives.
func serve(ctx context.Context, stop context.CancelFunc, logger *slog.Logger, cfg *config.Config, runService *services.RunService) int {
	store := api.NewResultStore(runService.History())
	runService.AddListener(store)

	var healthServer *api.HealthServer
	if cfg.Watch.GRPCAddress != "" {
		srv, err := api.NewHealthServer(cfg.Watch.GRPCAddress, cfg.Watch.GracefulTimeout)
		if err != nil {
			logger.Error("failed to create gRPC health server", slog.Any("error", err))
			return utils.ExitRuntime
		}
		healthServer = srv
		runService.AddListener(healthServer)
		go func() {
			logger.Info("gRPC health server listening", slog.String("address", healthServer.Address()))
			if serveErr := healthServer.Start(); serveErr != nil {
				logger.Error("gRPC health server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var statusServer *http.Server
	if cfg.Metrics.Address != "" {
		statusServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      api.NewStatusRouter(store, prometheus.DefaultGatherer),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("status server listening", slog.String("address", cfg.Metrics.Address))
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	runner := watch.NewRunner(logger, cfg.Watch, cfg.Input.Path, func(ctx context.Context) error {
		_, err := runService.Run(ctx)
		if writeErr := metrics.WriteTextfile(cfg.Metrics.TextfilePath, prometheus.DefaultGatherer); writeErr != nil {
			logger.Warn("metrics textfile not written", slog.Any("error", writeErr))
		}
		return err
	})
	code := utils.ExitOK
	if err := runner.Run(ctx); err != nil {
		logger.Error("watch mode failed", slog.Any("error", err))
		code = utils.ExitRuntime
	}
	logger.Info("shutting down")

	if healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Watch.GracefulTimeout)
		healthServer.Shutdown(shutdownCtx)
		cancel()
	}
	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server shutdown", slog.Any("error", err))
		}
		cancel()
	}
	logger.Info("spendtrends stopped",
		slog.Int("runs", runService.History().Count()),
		slog.Duration("runP95", runService.DurationP95()),
	)
	return code
}
