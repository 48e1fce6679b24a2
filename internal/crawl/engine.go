// Package crawl runs resumable harvest passes: a bounded pool of workers
// walks every instrument's timeframes, fetching chunks planned by the
// backfill scheduler and persisting each merged chunk before moving on.
package crawl

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"upstox-data/internal/metrics"
	"upstox-data/internal/model"
	"upstox-data/internal/provider"
	"upstox-data/internal/storage"
)

// Store loads and persists instrument records.
type Store interface {
	Load(inst model.Instrument) (*model.InstrumentRecord, error)
	Save(rec *model.InstrumentRecord) error
}

// Exporter mirrors a record into another format after it changed.
type Exporter interface {
	Export(rec *model.InstrumentRecord) error
}

// RetryPolicy bounds the attempts for one chunk request.
type RetryPolicy struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Options configure an Engine. Zero values take the defaults below.
type Options struct {
	Concurrency   int
	Timeframes    []model.Timeframe
	Horizon       model.Date
	ChunkOverride model.Span
	CaughtUpDays  int
	Retry         RetryPolicy
	// Location decides what "today" is.
	Location *time.Location
	Now      func() time.Time

	HeartbeatInterval time.Duration
	// ReportDir receives .lastrun.json; empty disables the report.
	ReportDir string
}

const (
	DefaultConcurrency = 6
	DefaultAttempts    = 3
	DefaultMinBackoff  = time.Second
	DefaultMaxBackoff  = 30 * time.Second
	DefaultHeartbeat   = 30 * time.Second
)

// DefaultHorizon is the earliest day backfill walks back to.
var DefaultHorizon = model.NewDate(2000, 1, 1)

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if len(o.Timeframes) == 0 {
		o.Timeframes = model.DefaultTimeframes
	}
	if o.Horizon.IsZero() {
		o.Horizon = DefaultHorizon
	}
	if o.Retry.Attempts < 1 {
		o.Retry.Attempts = DefaultAttempts
	}
	if o.Retry.MinBackoff <= 0 {
		o.Retry.MinBackoff = DefaultMinBackoff
	}
	if o.Retry.MaxBackoff < o.Retry.MinBackoff {
		o.Retry.MaxBackoff = DefaultMaxBackoff
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeat
	}
	return o
}

// Engine is the orchestration loop. Run may be called repeatedly; statuses
// of the latest run stay queryable in between.
type Engine struct {
	opts    Options
	store   Store
	fetcher provider.CandleFetcher

	metrics  *metrics.Metrics
	recorder UnitRecorder
	exporter Exporter
	writer   *storage.AtomicWriter
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	statuses map[string]UnitStatus
}

func NewEngine(store Store, fetcher provider.CandleFetcher, opts Options) *Engine {
	return &Engine{
		opts:     opts.withDefaults(),
		store:    store,
		fetcher:  fetcher,
		writer:   storage.NewAtomicWriter(),
		logger:   slog.Default().With("component", "crawl"),
		sleep:    sleepCtx,
		statuses: make(map[string]UnitStatus),
	}
}

func (e *Engine) SetMetrics(m *metrics.Metrics) { e.metrics = m }

func (e *Engine) SetRecorder(r UnitRecorder) { e.recorder = r }

func (e *Engine) SetExporter(x Exporter) { e.exporter = x }

// SetReportWriter shares the store's writer (and its hooks) for the run report.
func (e *Engine) SetReportWriter(w *storage.AtomicWriter) {
	if w != nil {
		e.writer = w
	}
}

func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Run performs one full pass over instruments and blocks until every unit
// has an outcome. Duplicate instrument keys are processed once. When ctx is
// cancelled the pass winds down (units not finished are Interrupted) and
// ctx.Err() is returned with the partial summary.
func (e *Engine) Run(ctx context.Context, instruments []model.Instrument) (RunSummary, error) {
	instruments = dedupeInstruments(instruments)
	tfs := e.opts.Timeframes
	totalUnits := len(instruments) * len(tfs)

	t := &tally{summary: RunSummary{
		RunID:       uuid.NewString(),
		Started:     e.opts.Now().UTC(),
		Instruments: len(instruments),
	}}
	e.logger.Info("run start", "run_id", t.summary.RunID, "instruments", len(instruments),
		"timeframes", len(tfs), "workers", e.opts.Concurrency)

	pending := make(chan model.Instrument, len(instruments))
	for _, inst := range instruments {
		pending <- inst
	}
	close(pending)

	results := make(chan UnitStatus, e.opts.Concurrency*len(tfs)+1)
	var resWg sync.WaitGroup
	resWg.Add(1)
	go func() {
		defer resWg.Done()
		e.runUnitCollector(ctx, results, t)
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go runHeartbeat(hbCtx, e.opts.HeartbeatInterval, totalUnits, t, e.logger)

	workers := e.opts.Concurrency
	if workers > len(instruments) {
		workers = len(instruments)
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for inst := range pending {
				if ctx.Err() != nil {
					e.emitRemaining(inst, nil, tfs, Interrupted, "", results)
					continue
				}
				e.processInstrument(ctx, inst, results)
			}
		}()
	}
	wg.Wait()
	close(results)
	resWg.Wait()
	stopHeartbeat()

	summary := t.snapshot()
	summary.Finished = e.opts.Now().UTC()
	sort.Slice(summary.Units, func(i, j int) bool {
		a, b := summary.Units[i], summary.Units[j]
		if a.InstrumentKey != b.InstrumentKey {
			return a.InstrumentKey < b.InstrumentKey
		}
		return a.Timeframe < b.Timeframe
	})
	e.finishRun(ctx, summary)
	return summary, ctx.Err()
}

func (e *Engine) finishRun(ctx context.Context, s RunSummary) {
	e.metrics.RunFinished(s.Finished)
	if e.opts.ReportDir != "" {
		if p, err := writeRunReport(e.writer, e.opts.ReportDir, s); err != nil {
			e.logger.Warn("could not write run report", "err", err)
		} else {
			e.logger.Info("run report saved", "path", p)
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordRun(context.WithoutCancel(ctx), s); err != nil {
			e.logger.Warn("record run failed", "err", err)
		}
	}
	e.logger.Info("summary",
		"run_id", s.RunID,
		"elapsed", s.Finished.Sub(s.Started).Round(time.Millisecond),
		"instruments", s.Instruments,
		"completed", s.Completed, "deferred", s.Deferred, "failed", s.Failed,
		"skipped", s.Skipped, "interrupted", s.Interrupted,
		"retried", s.Retried, "chunks", s.Chunks, "candles", s.Candles)
	if s.Failed > 0 || s.Deferred > 0 {
		e.logger.Info("summary failed", "count", s.Failed+s.Deferred, "reasons", joinFailedReasons(s.Units))
	}
}

// Status reports the latest known state of one unit.
func (e *Engine) Status(instrumentKey, timeframe string) (UnitStatus, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	u, ok := e.statuses[unitKey(instrumentKey, timeframe)]
	return u, ok
}

// Statuses lists every known unit ordered by instrument and timeframe.
func (e *Engine) Statuses() []UnitStatus {
	e.mu.RLock()
	out := make([]UnitStatus, 0, len(e.statuses))
	for _, u := range e.statuses {
		out = append(out, u)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstrumentKey != out[j].InstrumentKey {
			return out[i].InstrumentKey < out[j].InstrumentKey
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}

func (e *Engine) setStatus(u UnitStatus) {
	e.mu.Lock()
	e.statuses[u.key()] = u
	e.mu.Unlock()
}

func dedupeInstruments(in []model.Instrument) []model.Instrument {
	seen := make(map[string]bool, len(in))
	out := make([]model.Instrument, 0, len(in))
	for _, inst := range in {
		if inst.InstrumentKey == "" || seen[inst.InstrumentKey] {
			continue
		}
		seen[inst.InstrumentKey] = true
		out = append(out, inst)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
