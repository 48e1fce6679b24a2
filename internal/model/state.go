package model

import (
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is the layout version written to every record.
const SchemaVersion = 2

// TimeframeState is the per (instrument, timeframe) harvest state.
//
// The candle slice is never modified in place: Merge builds a new slice, so
// copies of a TimeframeState can be taken freely and used as candidates that
// are only adopted once they are durable.
type TimeframeState struct {
	MinSeen        Date
	MaxSeen        Date
	NextBackfillTo Date
	DoneBackfill   bool

	candles []Candle
	// forward position reached by top-up in this process; not persisted
	topUpCursor Date
}

// RestoreTimeframeState rebuilds a state from persisted fields. The candles
// must be strictly ascending; seen-date bounds are recomputed from them.
func RestoreTimeframeState(nextBackfillTo Date, done bool, candles []Candle) (TimeframeState, error) {
	if !IsStrictlyAscending(candles) {
		return TimeframeState{}, fmt.Errorf("candles are not strictly ascending")
	}
	st := TimeframeState{
		NextBackfillTo: nextBackfillTo,
		DoneBackfill:   done,
		candles:        candles,
	}
	st.recomputeBounds()
	return st, nil
}

// Initialized reports whether the scheduler has ever planned this timeframe.
func (s TimeframeState) Initialized() bool {
	return s.DoneBackfill || !s.NextBackfillTo.IsZero()
}

// Candles returns a copy of the ordered candles.
func (s TimeframeState) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Len is the number of stored candles.
func (s TimeframeState) Len() int { return len(s.candles) }

// Merge folds incoming candles in and refreshes MinSeen/MaxSeen.
func (s *TimeframeState) Merge(incoming []Candle) {
	if len(incoming) == 0 {
		return
	}
	s.candles = MergeCandles(s.candles, incoming)
	s.recomputeBounds()
}

func (s *TimeframeState) recomputeBounds() {
	if len(s.candles) == 0 {
		s.MinSeen, s.MaxSeen = Date{}, Date{}
		return
	}
	s.MinSeen = DateOf(s.candles[0].Timestamp)
	s.MaxSeen = DateOf(s.candles[len(s.candles)-1].Timestamp)
}

// TopUpCursor is the first day top-up has not yet requested in this process.
func (s TimeframeState) TopUpCursor() Date { return s.topUpCursor }

// SetTopUpCursor records top-up progress; it never moves backward.
func (s *TimeframeState) SetTopUpCursor(d Date) {
	s.topUpCursor = MaxDate(s.topUpCursor, d)
}

// InstrumentRecord is everything stored for one instrument.
type InstrumentRecord struct {
	Instrument     Instrument
	Timeframes     map[string]TimeframeState
	LastUpdatedUTC time.Time
	SchemaVersion  int
}

// NewInstrumentRecord returns an empty record; timeframes are added lazily.
func NewInstrumentRecord(inst Instrument, now time.Time) *InstrumentRecord {
	return &InstrumentRecord{
		Instrument:     inst,
		Timeframes:     make(map[string]TimeframeState),
		LastUpdatedUTC: now.UTC(),
		SchemaVersion:  SchemaVersion,
	}
}

// Timeframe returns the state for key, or a zero state if none exists yet.
func (r *InstrumentRecord) Timeframe(key string) TimeframeState {
	return r.Timeframes[key]
}

// With returns a copy of r in which key holds st. r itself is unchanged.
func (r *InstrumentRecord) With(key string, st TimeframeState, now time.Time) *InstrumentRecord {
	tfs := make(map[string]TimeframeState, len(r.Timeframes)+1)
	for k, v := range r.Timeframes {
		tfs[k] = v
	}
	tfs[key] = st
	return &InstrumentRecord{
		Instrument:     r.Instrument,
		Timeframes:     tfs,
		LastUpdatedUTC: now.UTC(),
		SchemaVersion:  SchemaVersion,
	}
}

// Keys returns the timeframe keys in sorted order.
func (r *InstrumentRecord) Keys() []string {
	keys := make([]string, 0, len(r.Timeframes))
	for k := range r.Timeframes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
