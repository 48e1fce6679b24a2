package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upstox-data/internal/crawl"
	"upstox-data/internal/model"
	"upstox-data/internal/provider/upstox"
	"upstox-data/internal/storage"
)

type emptyFetcher struct{ calls atomic.Int32 }

func (f *emptyFetcher) FetchCandles(context.Context, string, model.Timeframe, model.Date, model.Date) ([]model.RawCandleRow, error) {
	f.calls.Add(1)
	return nil, nil
}

func TestRunFlowRunOnce(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "instruments.json")
	require.NoError(t, os.WriteFile(file, []byte(directoryJSON), 0o644))

	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.InstrumentsFile = file
	cfg.RunOnce = true

	tf, err := model.ParseTimeframe("days|1")
	require.NoError(t, err)

	store := storage.NewRecordStore(cfg.DataDir, storage.NewAtomicWriter())
	fetcher := &emptyFetcher{}
	engine := crawl.NewEngine(store, fetcher, crawl.Options{
		Concurrency: 2,
		Timeframes:  []model.Timeframe{tf},
		Horizon:     model.MustParseDate("2024-05-01"),
		Location:    time.UTC,
		Now:         func() time.Time { return time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC) },
		ReportDir:   cfg.DataDir,
	})

	a := &App{Config: cfg, Engine: engine, Client: upstox.NewClient("", 1), Store: store}
	require.NoError(t, RunFlow(context.Background(), a))

	assert.Positive(t, fetcher.calls.Load())
	assert.FileExists(t, filepath.Join(cfg.DataDir, crawl.ReportFile))

	s, err := crawl.ReadRunReport(cfg.DataDir)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Instruments)
	assert.Len(t, s.Units, 2)
}

func TestRunFlowStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.InstrumentsFile = ""
	cfg.InstrumentsURL = ""

	store := storage.NewRecordStore(dir, storage.NewAtomicWriter())
	engine := crawl.NewEngine(store, &emptyFetcher{}, crawl.Options{})
	a := &App{Config: cfg, Engine: engine, Client: upstox.NewClient("", 1), Store: store}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunFlow(ctx, a) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunFlow did not stop after cancel")
	}
}
