package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edfinlab/spendtrends/internal/models"
)

const (
	// OutcomeSuccess labels runs that produced every artifact.
	OutcomeSuccess = "success"
	// OutcomeError labels runs aborted by a schema or runtime failure.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendtrends",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spendtrends",
			Name:      "run_seconds",
			Help:      "Pipeline run latency in seconds, export included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	recordsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spendtrends",
			Name:      "records_loaded",
			Help:      "Institution-year records in the most recent successful run.",
		},
	)

	institutionsCorrected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spendtrends",
			Name:      "institutions_corrected",
			Help:      "Institutions whose FTE series was replaced in the most recent successful run.",
		},
	)

	diagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendtrends",
			Name:      "diagnostics_total",
			Help:      "Diagnostics recorded across runs, partitioned by kind.",
		},
		[]string{"kind"},
	)

	lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spendtrends",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful run.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		recordsLoaded,
		institutionsCorrected,
		diagnosticsTotal,
		lastSuccess,
	}
}

// Register attaches spendtrends collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	for _, collector := range collectors() {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveResult updates the per-run gauges and diagnostic counters.
func ObserveResult(result *models.RunResult) {
	if result == nil {
		return
	}
	recordsLoaded.Set(float64(result.Records))
	institutionsCorrected.Set(float64(len(result.Corrections)))
	for kind, n := range models.CountByKind(result.Diagnostics) {
		diagnosticsTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
	if !result.FinishedAt.IsZero() {
		lastSuccess.Set(float64(result.FinishedAt.Unix()))
	}
}

// WriteTextfile writes the gatherer's metrics in the node-exporter textfile
// collector format. The file is replaced atomically.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
