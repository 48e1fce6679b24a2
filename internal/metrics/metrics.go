// Package metrics exposes harvester counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the harvester. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	FetchAttempts  *prometheus.CounterVec // labels: outcome=ok|transient|fatal|cancelled
	FetchDuration  prometheus.Histogram
	ChunksTotal    *prometheus.CounterVec // labels: mode=backfill|topup
	CandlesMerged  prometheus.Counter
	RowsRejected   prometheus.Counter
	UnitOutcomes   *prometheus.CounterVec // labels: outcome
	ReplaceRetries prometheus.Counter
	FallbackWrites prometheus.Counter
	LastRunUnix    prometheus.Gauge
}

// NewMetrics builds the metrics on a private registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_attempts_total",
			Help: "Candle requests sent to the vendor, by outcome",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Latency of one candle request",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_chunks_total",
			Help: "Chunks merged and persisted, by scheduler mode",
		}, []string{"mode"}),
		CandlesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_candles_merged_total",
			Help: "Valid candles folded into records",
		}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_rows_rejected_total",
			Help: "Vendor rows dropped by validation",
		}),
		UnitOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_unit_outcomes_total",
			Help: "Instrument/timeframe units finished, by outcome",
		}, []string{"outcome"}),
		ReplaceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_replace_retries_total",
			Help: "Atomic rename attempts that had to be retried",
		}),
		FallbackWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_fallback_writes_total",
			Help: "Writes that fell back to non-atomic in-place overwrite",
		}),
		LastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_last_run_finished_unixtime",
			Help: "Finish time of the last harvest pass",
		}),
	}

	m.reg.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.ChunksTotal,
		m.CandlesMerged,
		m.RowsRejected,
		m.UnitOutcomes,
		m.ReplaceRetries,
		m.FallbackWrites,
		m.LastRunUnix,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) ChunkMerged(mode string, candles, rejected int) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(mode).Inc()
	m.CandlesMerged.Add(float64(candles))
	m.RowsRejected.Add(float64(rejected))
}

func (m *Metrics) UnitFinished(outcome string) {
	if m == nil {
		return
	}
	m.UnitOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReplaceRetried() {
	if m == nil {
		return
	}
	m.ReplaceRetries.Inc()
}

func (m *Metrics) FallbackWrite() {
	if m == nil {
		return
	}
	m.FallbackWrites.Inc()
}

func (m *Metrics) RunFinished(t time.Time) {
	if m == nil {
		return
	}
	m.LastRunUnix.Set(float64(t.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
