// Package backfill decides which date window a timeframe should request next:
// backward chunks until the horizon is reached, then forward top-up to today.
package backfill

import (
	"fmt"

	"upstox-data/internal/model"
)

// Mode tells whether a window walks history backward or tops up forward.
type Mode int

const (
	Backfill Mode = iota
	TopUp
)

func (m Mode) String() string {
	if m == TopUp {
		return "topup"
	}
	return "backfill"
}

// Window is the half-open day range [From, To).
type Window struct {
	From model.Date
	To   model.Date
	Mode Mode
	// Final marks the backfill window that reaches the horizon.
	Final bool
}

// Last is the inclusive last day of the window, as sent to the vendor.
func (w Window) Last() model.Date { return w.To.AddDays(-1) }

// Empty reports a window that covers no day. Only a Final backfill window
// can be empty: it completes backfill without a fetch.
func (w Window) Empty() bool { return !w.From.Before(w.To) }

func (w Window) String() string {
	return fmt.Sprintf("%s %s..%s", w.Mode, w.From, w.Last())
}

// Scheduler plans windows for one timeframe.
type Scheduler struct {
	Horizon model.Date
	Chunk   model.Span
	// CaughtUpDays widens "current" for top-up; 0 means data through today.
	CaughtUpDays int
}

// New builds the scheduler for tf: the horizon is never earlier than the
// vendor's availability for the unit, and a zero chunk falls back to the
// unit default.
func New(tf model.Timeframe, horizon model.Date, chunk model.Span, caughtUpDays int) Scheduler {
	if chunk.IsZero() {
		chunk = tf.DefaultChunk()
	}
	return Scheduler{
		Horizon:      model.MaxDate(horizon, tf.Availability()),
		Chunk:        chunk,
		CaughtUpDays: caughtUpDays,
	}
}

// Next returns the window to fetch for st, or false when nothing is needed.
// It does not modify st; an uninitialised state plans as if its backfill
// pointer were today.
func (s Scheduler) Next(st model.TimeframeState, today model.Date) (Window, bool) {
	if !st.DoneBackfill {
		to := st.NextBackfillTo
		if to.IsZero() {
			to = today
		}
		if !to.After(s.Horizon) {
			return Window{From: to, To: to, Mode: Backfill, Final: true}, true
		}
		from := to.Sub(s.Chunk)
		if !from.After(s.Horizon) {
			return Window{From: s.Horizon, To: to, Mode: Backfill, Final: true}, true
		}
		return Window{From: from, To: to, Mode: Backfill}, true
	}

	if !st.MaxSeen.IsZero() && !st.MaxSeen.Before(today.AddDays(-s.CaughtUpDays)) {
		return Window{}, false
	}
	var from model.Date
	if st.MaxSeen.IsZero() {
		from = model.MaxDate(s.Horizon, today.Sub(s.Chunk))
	} else {
		from = st.MaxSeen.AddDays(1)
	}
	from = model.MaxDate(from, st.TopUpCursor())
	if from.After(today) {
		return Window{}, false
	}
	to := model.MinDate(today.AddDays(1), from.Add(s.Chunk))
	return Window{From: from, To: to, Mode: TopUp}, true
}

// Advance moves st's pointers past a window whose candles have been merged
// into st. Call it on the candidate state before persisting.
func (s Scheduler) Advance(st *model.TimeframeState, w Window) {
	switch w.Mode {
	case Backfill:
		st.NextBackfillTo = w.From
		if w.Final {
			st.DoneBackfill = true
		}
	case TopUp:
		st.SetTopUpCursor(w.To)
	}
}

// CaughtUp reports whether st has finished backfill and holds data through
// the previous trading day (weekdays) of today, widened by CaughtUpDays.
func (s Scheduler) CaughtUp(st model.TimeframeState, today model.Date) bool {
	if !st.DoneBackfill || st.MaxSeen.IsZero() {
		return false
	}
	return !st.MaxSeen.Before(today.PrevWeekday().AddDays(-s.CaughtUpDays))
}
