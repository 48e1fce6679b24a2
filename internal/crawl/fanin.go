package crawl

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UnitRecorder persists unit and run outcomes outside the data directory.
type UnitRecorder interface {
	RecordUnit(ctx context.Context, runID string, u UnitStatus) error
	RecordRun(ctx context.Context, s RunSummary) error
}

// tally is the collector's running summary, shared with the heartbeat.
type tally struct {
	mu      sync.Mutex
	summary RunSummary
}

func (t *tally) snapshot() RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summary
	s.Units = append([]UnitStatus(nil), t.summary.Units...)
	return s
}

// runUnitCollector drains worker results: it updates the run tally, the
// engine's status view, metrics and the recorder. Being the only consumer,
// it serialises recorder writes.
func (e *Engine) runUnitCollector(ctx context.Context, results <-chan UnitStatus, t *tally) {
	for u := range results {
		t.mu.Lock()
		t.summary.add(u)
		runID := t.summary.RunID
		t.mu.Unlock()

		e.setStatus(u)
		e.metrics.UnitFinished(string(u.Outcome))
		if e.recorder != nil {
			// the run context may already be cancelled; recording still matters
			if err := e.recorder.RecordUnit(context.WithoutCancel(ctx), runID, u); err != nil {
				e.logger.Warn("record unit failed", "instrument", u.InstrumentKey, "tf", u.Timeframe, "err", err)
			}
		}
	}
}

func runHeartbeat(ctx context.Context, interval time.Duration, totalUnits int, t *tally, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			s := t.summary
			t.mu.Unlock()
			logger.Info("heartbeat",
				"done", s.Done(), "total", totalUnits,
				"completed", s.Completed, "deferred", s.Deferred, "failed", s.Failed,
				"chunks", s.Chunks, "candles", s.Candles)
		}
	}
}
