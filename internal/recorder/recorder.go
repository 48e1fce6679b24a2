// Package recorder keeps a ledger of harvest runs and the latest outcome of
// every (instrument, timeframe) unit, for the status command and dashboards.
package recorder

import (
	"context"

	"upstox-data/internal/crawl"
)

// Recorder persists run history.
type Recorder interface {
	crawl.UnitRecorder
	LatestUnits(ctx context.Context) ([]crawl.UnitStatus, error)
	Close() error
}

// NoopRecorder is used when no status database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordUnit(context.Context, string, crawl.UnitStatus) error { return nil }
func (NoopRecorder) RecordRun(context.Context, crawl.RunSummary) error          { return nil }
func (NoopRecorder) LatestUnits(context.Context) ([]crawl.UnitStatus, error)    { return nil, nil }
func (NoopRecorder) Close() error                                              { return nil }
