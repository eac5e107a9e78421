package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/edfinlab/spendtrends/internal/models"
)

// EnvPrefix namespaces every environment override, e.g. SPENDTRENDS_FTE_THRESHOLD.
const EnvPrefix = "SPENDTRENDS"

// Config captures every setting a run needs. It is treated as immutable once loaded.
type Config struct {
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Correction CorrectionConfig `yaml:"correction"`
	Deflator   map[int]float64  `yaml:"deflator"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Watch      WatchConfig      `yaml:"watch"`
}

// InputConfig locates the raw panel.
type InputConfig struct {
	Path string `yaml:"path" validate:"required"`
	// Sheet selects the worksheet for .xlsx inputs; empty means the first sheet.
	Sheet string `yaml:"sheet"`
}

// OutputConfig names the artifacts written after a successful run. Empty file
// names disable that artifact.
type OutputConfig struct {
	Dir             string `yaml:"dir" validate:"required"`
	CorrectedFile   string `yaml:"correctedFile"`
	SummaryFile     string `yaml:"summaryFile"`
	SeriesFile      string `yaml:"seriesFile"`
	CorrectionsFile string `yaml:"correctionsFile"`
	DiagnosticsFile string `yaml:"diagnosticsFile"`
	WorkbookFile    string `yaml:"workbookFile"`
	ChartFile       string `yaml:"chartFile"`
	Console         bool   `yaml:"console"`
}

// CorrectionConfig controls the FTE anomaly rule.
type CorrectionConfig struct {
	// Threshold is the fte[anomalyYear]/fte[anomalyYear-1] ratio above which an
	// institution is corrected.
	Threshold   float64 `yaml:"threshold" validate:"gte=1"`
	AnomalyYear int     `yaml:"anomalyYear" validate:"gt=0"`
}

// AnalysisConfig controls the trend analyzer.
type AnalysisConfig struct {
	Statistic string `yaml:"statistic" validate:"oneof=median mean"`
	// StatisticOverrides sets the aggregate per metric, e.g. shares use the mean.
	StatisticOverrides map[string]string `yaml:"statisticOverrides" validate:"dive,oneof=median mean"`
	Metrics            []string          `yaml:"metrics" validate:"required,min=1,dive,required"`
	// GroupBy lists grouping keys; "" or "all" is the ungrouped analysis.
	GroupBy        []string         `yaml:"groupBy"`
	Comparison     ComparisonConfig `yaml:"comparison"`
	Paired         bool             `yaml:"paired"`
	ShareTolerance float64          `yaml:"shareTolerance" validate:"gte=0,lt=1"`
}

// ComparisonConfig selects the two groups for the independent-groups test.
type ComparisonConfig struct {
	Key    string `yaml:"key"`
	GroupA string `yaml:"groupA"`
	GroupB string `yaml:"groupB"`
}

// Enabled reports whether an independent-groups comparison is configured.
func (c ComparisonConfig) Enabled() bool {
	return c.Key != "" && c.GroupA != "" && c.GroupB != ""
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls Prometheus output.
type MetricsConfig struct {
	// TextfilePath, when set, receives the registry in node-exporter textfile format after a batch run.
	TextfilePath string `yaml:"textfilePath"`
	// Address serves /metrics and the status API in watch mode.
	Address string `yaml:"address"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout none"`
}

// WatchConfig controls the long-running mode.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron spec such as "@every 1h"; empty disables scheduled runs.
	Schedule        string        `yaml:"schedule"`
	Debounce        time.Duration `yaml:"debounce"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// envOverrides lists the settings that may come from the environment. Zero
// values mean "not set".
type envOverrides struct {
	Input        string  `envconfig:"INPUT"`
	OutputDir    string  `envconfig:"OUTPUT_DIR"`
	FTEThreshold float64 `envconfig:"FTE_THRESHOLD"`
	AnomalyYear  int     `envconfig:"ANOMALY_YEAR"`
	Statistic    string  `envconfig:"STATISTIC"`
	LogLevel     string  `envconfig:"LOG_LEVEL"`
	LogFormat    string  `envconfig:"LOG_FORMAT"`
	MetricsFile  string  `envconfig:"METRICS_TEXTFILE"`
	MetricsAddr  string  `envconfig:"METRICS_ADDRESS"`
	GRPCAddress  string  `envconfig:"GRPC_ADDRESS"`
	Tracing      string  `envconfig:"TRACING"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode unmarshals YAML over cfg. A deflator table in the file replaces the
// default table instead of being merged into it.
func decode(data []byte, cfg *Config) error {
	var probe struct {
		Deflator map[int]float64 `yaml:"deflator"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if probe.Deflator != nil {
		cfg.Deflator = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Input: InputConfig{Path: "panel_2018_2023.csv"},
		Output: OutputConfig{
			Dir:             "out",
			CorrectedFile:   "panel_2018_2023_corrected.csv",
			SummaryFile:     "trend_analysis_summary.csv",
			SeriesFile:      "trend_analysis_series.csv",
			CorrectionsFile: "fte_corrections.csv",
			DiagnosticsFile: "diagnostics.csv",
			WorkbookFile:    "trend_analysis.xlsx",
			ChartFile:       "trend_analysis_comprehensive.png",
			Console:         true,
		},
		Correction: CorrectionConfig{Threshold: 2.0, AnomalyYear: 2020},
		// CPI deflator, 2018 = 1.00 (U.S. Bureau of Labor Statistics).
		Deflator: map[int]float64{
			2018: 1.00,
			2019: 1.02,
			2020: 1.03,
			2021: 1.08,
			2022: 1.16,
			2023: 1.20,
		},
		Analysis: AnalysisConfig{
			Statistic: "median",
			StatisticOverrides: map[string]string{
				"admin_share":       "mean",
				"instruction_share": "mean",
				"research_share":    "mean",
			},
			Metrics: []string{
				"admin_share",
				"instruction_share",
				"research_share",
				"admin_per_fte",
				"instruction_per_fte",
				"total_per_fte",
				"admin_per_fte_real",
				"instruction_per_fte_real",
				"total_per_fte_real",
				"admin_real",
				"instruction_real",
			},
			GroupBy: []string{"", "institution_type"},
			Comparison: ComparisonConfig{
				Key:    "institution_type",
				GroupA: "Public",
				GroupB: "Private",
			},
			Paired:         true,
			ShareTolerance: 0.01,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Tracing: TracingConfig{Enabled: false, Exporter: "stdout"},
		Watch: WatchConfig{
			Debounce:        2 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.Input != "" {
		cfg.Input.Path = env.Input
	}
	if env.OutputDir != "" {
		cfg.Output.Dir = env.OutputDir
	}
	if env.FTEThreshold != 0 {
		cfg.Correction.Threshold = env.FTEThreshold
	}
	if env.AnomalyYear != 0 {
		cfg.Correction.AnomalyYear = env.AnomalyYear
	}
	if env.Statistic != "" {
		cfg.Analysis.Statistic = strings.ToLower(env.Statistic)
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(env.LogLevel)
	}
	if strings.EqualFold(env.LogFormat, "json") {
		cfg.Logging.JSON = true
	}
	if env.MetricsFile != "" {
		cfg.Metrics.TextfilePath = env.MetricsFile
	}
	if env.MetricsAddr != "" {
		cfg.Metrics.Address = env.MetricsAddr
	}
	if env.GRPCAddress != "" {
		cfg.Watch.GRPCAddress = env.GRPCAddress
	}
	switch strings.ToLower(env.Tracing) {
	case "true", "1", "stdout":
		cfg.Tracing.Enabled = true
	case "false", "0", "none":
		cfg.Tracing.Enabled = false
	}
	return nil
}

// Validate checks struct constraints and the deflator table.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.DeflatorTable().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, name := range c.Analysis.Metrics {
		if _, err := models.ParseMetric(name); err != nil {
			return fmt.Errorf("invalid config: analysis.metrics: %w", err)
		}
	}
	return nil
}

// DeflatorTable returns a copy of the configured deflator.
func (c *Config) DeflatorTable() models.Deflator {
	table := make(models.Deflator, len(c.Deflator))
	for y, v := range c.Deflator {
		table[y] = v
	}
	return table
}

// DeflatorYears returns the deflator table's years in ascending order.
func (c *Config) DeflatorYears() []int {
	return c.DeflatorTable().Years()
}

// StatisticFor returns the aggregate applied to metric.
func (c *Config) StatisticFor(metric string) models.Statistic {
	if s, ok := c.Analysis.StatisticOverrides[metric]; ok {
		return models.Statistic(s)
	}
	return models.Statistic(c.Analysis.Statistic)
}
