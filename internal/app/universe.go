package app

import (
	"context"
	"fmt"
	"log/slog"

	"upstox-data/internal/model"
	"upstox-data/internal/provider/upstox"
	"upstox-data/internal/storage"
)

// LoadInstruments builds the run's universe: the instrument directory (a
// local file wins over the URL) plus, with TopUpExisting, every instrument
// already stored so delisted names keep being topped up.
func LoadInstruments(ctx context.Context, cfg *Config, c *upstox.Client, store *storage.RecordStore) ([]model.Instrument, error) {
	filter := upstox.Filter{InstrumentTypes: cfg.InstrumentTypes, Segments: cfg.Segments}

	var listed []model.Instrument
	var err error
	switch {
	case cfg.InstrumentsFile != "":
		listed, err = upstox.LoadInstrumentsFile(cfg.InstrumentsFile, filter)
	case cfg.InstrumentsURL != "":
		listed, err = c.DownloadInstruments(ctx, cfg.InstrumentsURL, filter)
	}

	var existing []model.Instrument
	if cfg.TopUpExisting {
		var scanErr error
		existing, scanErr = store.Scan()
		if scanErr != nil {
			slog.Warn("scan existing records failed", "dir", store.Root(), "err", scanErr)
		}
	}

	if err != nil {
		if len(existing) == 0 {
			return nil, fmt.Errorf("load instruments: %w", err)
		}
		slog.Warn("instrument directory unavailable, topping up stored instruments only", "err", err, "stored", len(existing))
	}

	out := mergeUniverse(listed, existing)
	slog.Info("instrument universe", "listed", len(listed), "stored", len(existing), "total", len(out))
	return out, nil
}

// mergeUniverse keeps directory entries first (fresher metadata) and
// appends stored instruments the directory no longer lists.
func mergeUniverse(listed, existing []model.Instrument) []model.Instrument {
	seen := make(map[string]bool, len(listed)+len(existing))
	out := make([]model.Instrument, 0, len(listed)+len(existing))
	for _, group := range [][]model.Instrument{listed, existing} {
		for _, inst := range group {
			if inst.InstrumentKey == "" || seen[inst.InstrumentKey] {
				continue
			}
			seen[inst.InstrumentKey] = true
			out = append(out, inst)
		}
	}
	return out
}
