package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"upstox-data/internal/model"
	"upstox-data/internal/provider/upstox"
	"upstox-data/internal/saver"
)

// Config holds application configuration: defaults, then an optional YAML
// file, then environment variables.
type Config struct {
	APIToken          string        `yaml:"api_token"`
	BaseURL           string        `yaml:"base_url"`
	DataDir           string        `yaml:"data_dir"`
	LogLevel          string        `yaml:"log_level"`  // debug | info | warn | error
	LogFormat         string        `yaml:"log_format"` // text | json
	MaxConcurrency    int           `yaml:"max_concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestBurst      int           `yaml:"request_burst"`
	FetchAttempts     int           `yaml:"fetch_attempts"`
	RetryMinBackoff   time.Duration `yaml:"retry_min_backoff"`
	RetryMaxBackoff   time.Duration `yaml:"retry_max_backoff"`
	ReplaceAttempts   int           `yaml:"replace_attempts"`
	BackfillHorizon   string        `yaml:"backfill_horizon"`
	ChunkOverride     string        `yaml:"chunk_override"`
	CaughtUpDays      int           `yaml:"caught_up_days"`
	Timeframes        []string      `yaml:"timeframes"`
	Timezone          string        `yaml:"timezone"`
	RunSchedule       string        `yaml:"run_schedule"`
	RunOnce           bool          `yaml:"run_once"`
	ExportFormat      string        `yaml:"export_format"`
	ExportDir         string        `yaml:"export_dir"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	StatusDB          string        `yaml:"status_db"`
	InstrumentsFile   string        `yaml:"instruments_file"`
	InstrumentsURL    string        `yaml:"instruments_url"`
	InstrumentTypes   []string      `yaml:"instrument_types"`
	Segments          []string      `yaml:"segments"`
	TopUpExisting     bool          `yaml:"top_up_existing"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           upstox.DefaultBaseURL,
		DataDir:           "data_upstox_json",
		LogLevel:          "info",
		LogFormat:         "text",
		MaxConcurrency:    6,
		RequestsPerSecond: 4,
		RequestBurst:      1,
		FetchAttempts:     3,
		RetryMinBackoff:   time.Second,
		RetryMaxBackoff:   30 * time.Second,
		ReplaceAttempts:   10,
		BackfillHorizon:   "2000-01-01",
		Timeframes:        timeframeKeys(model.DefaultTimeframes),
		Timezone:          "Asia/Kolkata",
		RunSchedule:       "30 0 * * *",
		ExportDir:         "data_export",
		InstrumentsURL:    upstox.DefaultInstrumentsURL,
		InstrumentTypes:   []string{"EQ"},
		TopUpExisting:     true,
	}
}

// LoadConfig reads config from path (or CONFIG_FILE when path is empty),
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.StatusDB == "" {
		cfg.StatusDB = filepath.Join(cfg.DataDir, ".status.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("UPSTOX_API_TOKEN"); v != "" {
		c.APIToken = v
	} else if v := os.Getenv("API_TOKEN"); v != "" {
		c.APIToken = v
	}
	c.BaseURL = getEnv("UPSTOX_BASE_URL", c.BaseURL)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.BackfillHorizon = getEnv("BACKFILL_HORIZON", c.BackfillHorizon)
	c.ChunkOverride = getEnv("CHUNK_OVERRIDE", c.ChunkOverride)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.RunSchedule = getEnv("RUN_SCHEDULE", c.RunSchedule)
	c.ExportFormat = getEnv("EXPORT_FORMAT", c.ExportFormat)
	c.ExportDir = getEnv("EXPORT_DIR", c.ExportDir)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.StatusDB = getEnv("STATUS_DB", c.StatusDB)
	c.InstrumentsFile = getEnv("INSTRUMENTS_FILE", c.InstrumentsFile)
	c.InstrumentsURL = getEnv("INSTRUMENTS_URL", c.InstrumentsURL)
	c.Timeframes = getEnvList("TIMEFRAMES", c.Timeframes)
	c.InstrumentTypes = getEnvList("INSTRUMENT_TYPES", c.InstrumentTypes)
	c.Segments = getEnvList("SEGMENTS", c.Segments)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(getEnvInt("MAX_CONCURRENCY", &c.MaxConcurrency))
	collect(getEnvInt("REQUEST_BURST", &c.RequestBurst))
	collect(getEnvInt("FETCH_ATTEMPTS", &c.FetchAttempts))
	collect(getEnvInt("REPLACE_ATTEMPTS", &c.ReplaceAttempts))
	collect(getEnvInt("CAUGHT_UP_DAYS", &c.CaughtUpDays))
	collect(getEnvFloat("REQUESTS_PER_SECOND", &c.RequestsPerSecond))
	collect(getEnvDuration("RETRY_MIN_BACKOFF", &c.RetryMinBackoff))
	collect(getEnvDuration("RETRY_MAX_BACKOFF", &c.RetryMaxBackoff))
	collect(getEnvBool("RUN_ONCE", &c.RunOnce))
	collect(getEnvBool("TOP_UP_EXISTING", &c.TopUpExisting))
	return errors.Join(errs...)
}

// Validate rejects values the harvester cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.FetchAttempts < 1 {
		return fmt.Errorf("fetch_attempts must be at least 1, got %d", c.FetchAttempts)
	}
	if c.ReplaceAttempts < 1 {
		return fmt.Errorf("replace_attempts must be at least 1, got %d", c.ReplaceAttempts)
	}
	if c.RetryMinBackoff <= 0 || c.RetryMaxBackoff < c.RetryMinBackoff {
		return fmt.Errorf("retry backoff must satisfy 0 < min <= max (got %s, %s)", c.RetryMinBackoff, c.RetryMaxBackoff)
	}
	if c.CaughtUpDays < 0 {
		return fmt.Errorf("caught_up_days must not be negative")
	}
	if _, err := c.Horizon(); err != nil {
		return fmt.Errorf("backfill_horizon: %w", err)
	}
	if _, err := c.Chunk(); err != nil {
		return fmt.Errorf("chunk_override: %w", err)
	}
	if _, err := c.TimeframeList(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("run_schedule: %w", err)
	}
	if c.ExportFormat != "" && saver.NewEncoder(c.ExportFormat) == nil {
		return fmt.Errorf("unsupported export_format %q (use: csv, parquet, json)", c.ExportFormat)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (use: text, json)", c.LogFormat)
	}
	if c.InstrumentsFile == "" && c.InstrumentsURL == "" && !c.TopUpExisting {
		return fmt.Errorf("no instrument source: set instruments_file, instruments_url or top_up_existing")
	}
	return nil
}

// Horizon is the configured backfill horizon.
func (c *Config) Horizon() (model.Date, error) {
	d, err := model.ParseDate(strings.TrimSpace(c.BackfillHorizon))
	if err != nil {
		return model.Date{}, err
	}
	if d.IsZero() {
		return model.Date{}, fmt.Errorf("must be set")
	}
	return d, nil
}

// Chunk is the chunk override; zero means per-unit defaults.
func (c *Config) Chunk() (model.Span, error) {
	if strings.TrimSpace(c.ChunkOverride) == "" {
		return model.Span{}, nil
	}
	return model.ParseSpan(strings.TrimSpace(c.ChunkOverride))
}

func (c *Config) TimeframeList() ([]model.Timeframe, error) {
	tfs, err := model.ParseTimeframes(c.Timeframes)
	if err != nil {
		return nil, err
	}
	if len(tfs) == 0 {
		return nil, fmt.Errorf("timeframes: at least one is required")
	}
	return tfs, nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Schedule parses RunSchedule as a standard 5-field cron expression,
// evaluated in the configured timezone.
func (c *Config) Schedule() (cron.Schedule, error) {
	expr := strings.TrimSpace(c.RunSchedule)
	if c.Timezone != "" && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=" + c.Timezone + " " + expr
	}
	return cron.ParseStandard(expr)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func getEnvFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func getEnvDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func getEnvBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func timeframeKeys(tfs []model.Timeframe) []string {
	keys := make([]string, len(tfs))
	for i, tf := range tfs {
		keys[i] = tf.Key()
	}
	return keys
}
