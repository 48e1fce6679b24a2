package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"upstox-data/internal/backfill"
	"upstox-data/internal/model"
	"upstox-data/internal/provider"
)

// processInstrument owns inst's record for the duration of the call and
// walks its timeframes in order.
func (e *Engine) processInstrument(ctx context.Context, inst model.Instrument, results chan<- UnitStatus) {
	tfs := e.opts.Timeframes
	rec, err := e.store.Load(inst)
	if err != nil {
		e.logger.Error("load record failed", "instrument", inst.InstrumentKey, "symbol", inst.Symbol(), "err", err)
		e.emitRemaining(inst, nil, tfs, Failed, err.Error(), results)
		return
	}

	changed := false
	for i, tf := range tfs {
		if ctx.Err() != nil {
			e.emitRemaining(inst, rec, tfs[i:], Interrupted, "", results)
			break
		}
		var u UnitStatus
		var halt bool
		u, rec, halt = e.processUnit(ctx, rec, tf)
		results <- u
		if u.Chunks > 0 {
			changed = true
		}
		if halt {
			e.emitRemaining(inst, rec, tfs[i+1:], Skipped, "earlier timeframe failed: "+u.LastError, results)
			break
		}
	}

	if changed && e.exporter != nil {
		if err := e.exporter.Export(rec); err != nil {
			e.logger.Warn("export failed", "instrument", inst.InstrumentKey, "symbol", inst.Symbol(), "err", err)
		}
	}
}

// processUnit runs the fetch/merge/persist loop for one timeframe until the
// scheduler is satisfied or something stops it. It returns the record as
// last persisted, and halt=true when the instrument's remaining timeframes
// must be skipped.
func (e *Engine) processUnit(ctx context.Context, rec *model.InstrumentRecord, tf model.Timeframe) (UnitStatus, *model.InstrumentRecord, bool) {
	inst := rec.Instrument
	key := tf.Key()
	sched := backfill.New(tf, e.opts.Horizon, e.opts.ChunkOverride, e.opts.CaughtUpDays)
	log := e.logger.With("instrument", inst.InstrumentKey, "symbol", inst.Symbol(), "tf", key)

	u := UnitStatus{
		InstrumentKey: inst.InstrumentKey,
		Symbol:        inst.Symbol(),
		Segment:       inst.Segment,
		Timeframe:     key,
	}
	halt := false
	var today model.Date

loop:
	for {
		today = e.today()
		st := rec.Timeframe(key)
		w, ok := sched.Next(st, today)
		if !ok {
			u.Outcome = Completed
			break
		}
		if ctx.Err() != nil {
			u.Outcome = Interrupted
			break
		}

		var incoming []model.Candle
		rejected := 0
		if !w.Empty() {
			rows, retries, err := e.fetchWithRetry(ctx, inst.InstrumentKey, tf, w, log)
			u.Retries += retries
			if err != nil {
				u.LastError = err.Error()
				switch {
				case ctx.Err() != nil:
					u.Outcome = Interrupted
				case provider.KindOf(err) == provider.KindFatal:
					u.Outcome = Failed
					halt = true
					log.Error("fetch failed", "window", w.String(), "err", err)
				default:
					u.Outcome = Deferred
					log.Warn("fetch deferred", "window", w.String(), "err", err)
				}
				break loop
			}
			var rowErrs []model.RowError
			incoming, rowErrs = model.ParseRows(rows)
			rejected = len(rowErrs)
			for _, re := range rowErrs {
				log.Warn("row rejected", "window", w.String(), "index", re.Index, "reason", re.Reason)
			}
		}

		cand := st
		cand.Merge(incoming)
		sched.Advance(&cand, w)
		next := rec.With(key, cand, e.opts.Now())
		if err := e.store.Save(next); err != nil {
			u.Outcome = Failed
			u.LastError = err.Error()
			log.Error("persist failed", "window", w.String(), "err", err)
			break
		}
		rec = next

		u.Chunks++
		u.Candles += len(incoming)
		u.Rejected += rejected
		e.metrics.ChunkMerged(w.Mode.String(), len(incoming), rejected)
		log.Debug("chunk merged", "window", w.String(), "candles", len(incoming), "total", cand.Len())
	}

	st := rec.Timeframe(key)
	fillState(&u, st)
	u.CaughtUp = sched.CaughtUp(st, today)
	u.Updated = e.opts.Now().UTC()
	if u.Outcome == Completed {
		log.Info("timeframe done", "chunks", u.Chunks, "candles", u.Candles, "caught_up", u.CaughtUp,
			"min_seen", st.MinSeen, "max_seen", st.MaxSeen)
	}
	return u, rec, halt
}

// fetchWithRetry returns the rows of w, retrying transient failures with
// exponential backoff. retries counts the extra attempts made.
func (e *Engine) fetchWithRetry(ctx context.Context, instrumentKey string, tf model.Timeframe, w backfill.Window, log *slog.Logger) (rows []model.RawCandleRow, retries int, err error) {
	policy := e.opts.Retry
	b := &backoff.Backoff{Min: policy.MinBackoff, Max: policy.MaxBackoff, Factor: 2, Jitter: true}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		rows, err = e.fetcher.FetchCandles(ctx, instrumentKey, tf, w.From, w.Last())
		e.metrics.ObserveFetch(fetchOutcome(ctx, err), time.Since(start))
		if err == nil {
			return rows, retries, nil
		}
		if ctx.Err() != nil {
			return nil, retries, ctx.Err()
		}
		if provider.KindOf(err) == provider.KindFatal {
			return nil, retries, err
		}
		if attempt >= policy.Attempts {
			return nil, retries, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		d := b.Duration()
		log.Warn("fetch retry", "window", w.String(), "attempt", attempt, "wait", d, "err", err)
		if err := e.sleep(ctx, d); err != nil {
			return nil, retries, err
		}
		retries++
	}
}

func fetchOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "cancelled"
	default:
		return provider.KindOf(err).String()
	}
}

// emitRemaining reports units that were not attempted. rec may be nil when
// the record could not be loaded.
func (e *Engine) emitRemaining(inst model.Instrument, rec *model.InstrumentRecord, tfs []model.Timeframe, outcome Outcome, reason string, results chan<- UnitStatus) {
	now := e.opts.Now().UTC()
	for _, tf := range tfs {
		u := UnitStatus{
			InstrumentKey: inst.InstrumentKey,
			Symbol:        inst.Symbol(),
			Segment:       inst.Segment,
			Timeframe:     tf.Key(),
			Outcome:       outcome,
			LastError:     reason,
			Updated:       now,
		}
		if rec != nil {
			fillState(&u, rec.Timeframe(tf.Key()))
		}
		results <- u
	}
}

func fillState(u *UnitStatus, st model.TimeframeState) {
	u.DoneBackfill = st.DoneBackfill
	u.MinSeen = st.MinSeen
	u.MaxSeen = st.MaxSeen
	u.NextBackfillTo = st.NextBackfillTo
}

func (e *Engine) today() model.Date {
	return model.Today(e.opts.Now(), e.opts.Location)
}
