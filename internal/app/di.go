package app

import (
	"fmt"
	"log/slog"
	"os"

	"upstox-data/internal/crawl"
	"upstox-data/internal/metrics"
	"upstox-data/internal/provider"
	"upstox-data/internal/provider/upstox"
	"upstox-data/internal/recorder"
	"upstox-data/internal/saver"
	"upstox-data/internal/slogx"
	"upstox-data/internal/storage"
)

// ConfigPath is the -config flag value (may be empty).
type ConfigPath string

// App holds application dependencies built by Wire.
type App struct {
	Config   *Config
	Engine   *crawl.Engine
	Client   *upstox.Client
	Store    *storage.RecordStore
	Metrics  *metrics.Metrics
	Recorder recorder.Recorder
	Logger   *slog.Logger
}

// ProvideConfig loads config from file and environment (for Wire).
func ProvideConfig(path ConfigPath) (*Config, error) {
	return LoadConfig(string(path))
}

// ProvideLogger builds the configured logger. Components that keep a
// logger take it from here so they never capture the bootstrap default.
func ProvideLogger(cfg *Config) *slog.Logger {
	return slogx.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// ProvideMetrics creates the Prometheus metrics (for Wire).
func ProvideMetrics() *metrics.Metrics {
	return metrics.NewMetrics()
}

// ProvideAtomicWriter creates the writer shared by records, exports and the
// run report; fallbacks and retries are logged and counted.
func ProvideAtomicWriter(cfg *Config, m *metrics.Metrics) *storage.AtomicWriter {
	w := storage.NewAtomicWriter()
	w.MaxReplaceAttempts = cfg.ReplaceAttempts
	w.OnReplaceRetry = func(path string, attempt int, err error) {
		m.ReplaceRetried()
		slog.Debug("replace retry", "path", path, "attempt", attempt, "err", err)
	}
	w.OnFallback = func(path string, cause error) {
		m.FallbackWrite()
		slog.Warn("atomic replace failed, wrote in place", "path", path, "err", cause)
	}
	return w
}

// ProvideRecordStore creates the JSON record store under DataDir (for Wire).
func ProvideRecordStore(cfg *Config, w *storage.AtomicWriter) *storage.RecordStore {
	return storage.NewRecordStore(cfg.DataDir, w)
}

// ProvideUpstoxClient creates the vendor client (for Wire).
func ProvideUpstoxClient(cfg *Config) *upstox.Client {
	c := upstox.NewClient(cfg.APIToken, cfg.MaxConcurrency*2)
	c.BaseURL = cfg.BaseURL
	return c
}

// ProvideFetcher rate-limits the client across all workers (for Wire).
func ProvideFetcher(cfg *Config, c *upstox.Client) *provider.RateLimited {
	return provider.NewRateLimited(c, cfg.RequestsPerSecond, cfg.RequestBurst)
}

// ProvideRecorder opens the status database. The cleanup closes it.
func ProvideRecorder(cfg *Config) (recorder.Recorder, func(), error) {
	if cfg.StatusDB == "" || cfg.StatusDB == "off" {
		return recorder.NewNoopRecorder(), func() {}, nil
	}
	r, err := recorder.NewSQLiteRecorder(cfg.StatusDB)
	if err != nil {
		return nil, nil, fmt.Errorf("status db %s: %w", cfg.StatusDB, err)
	}
	return r, func() {
		if err := r.Close(); err != nil {
			slog.Warn("close status db", "err", err)
		}
	}, nil
}

// ProvideExporter returns nil when no export format is configured.
func ProvideExporter(cfg *Config, w *storage.AtomicWriter) crawl.Exporter {
	if cfg.ExportFormat == "" {
		return nil
	}
	return saver.NewExporter(cfg.ExportDir, saver.MustEncoder(cfg.ExportFormat), w)
}

// ProvideEngine wires the orchestration loop (for Wire).
func ProvideEngine(
	cfg *Config,
	store *storage.RecordStore,
	fetcher provider.CandleFetcher,
	m *metrics.Metrics,
	rec recorder.Recorder,
	x crawl.Exporter,
	w *storage.AtomicWriter,
	logger *slog.Logger,
) (*crawl.Engine, error) {
	tfs, err := cfg.TimeframeList()
	if err != nil {
		return nil, err
	}
	horizon, err := cfg.Horizon()
	if err != nil {
		return nil, err
	}
	chunk, err := cfg.Chunk()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	e := crawl.NewEngine(store, fetcher, crawl.Options{
		Concurrency:   cfg.MaxConcurrency,
		Timeframes:    tfs,
		Horizon:       horizon,
		ChunkOverride: chunk,
		CaughtUpDays:  cfg.CaughtUpDays,
		Retry: crawl.RetryPolicy{
			Attempts:   cfg.FetchAttempts,
			MinBackoff: cfg.RetryMinBackoff,
			MaxBackoff: cfg.RetryMaxBackoff,
		},
		Location:  loc,
		ReportDir: cfg.DataDir,
	})
	e.SetMetrics(m)
	e.SetRecorder(rec)
	if x != nil {
		e.SetExporter(x)
	}
	e.SetReportWriter(w)
	e.SetLogger(logger.With("component", "crawl"))
	return e, nil
}
