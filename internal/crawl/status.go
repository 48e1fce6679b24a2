package crawl

import (
	"time"

	"upstox-data/internal/model"
)

// Outcome is how one (instrument, timeframe) unit ended in a run.
type Outcome string

const (
	// Completed: the scheduler has nothing more to request today.
	Completed Outcome = "completed"
	// Deferred: transient errors exhausted the retry budget; state is
	// unchanged from the last persisted chunk and the next run resumes.
	Deferred Outcome = "deferred"
	// Failed: fatal vendor error, unreadable record or storage failure.
	Failed Outcome = "failed"
	// Skipped: an earlier timeframe of the same instrument failed fatally.
	Skipped Outcome = "skipped"
	// Interrupted: the run was cancelled before the unit finished.
	Interrupted Outcome = "interrupted"
)

// UnitStatus is the per-run view of one (instrument, timeframe) unit.
type UnitStatus struct {
	InstrumentKey  string     `json:"instrument_key"`
	Symbol         string     `json:"symbol"`
	Segment        string     `json:"segment"`
	Timeframe      string     `json:"timeframe"`
	Outcome        Outcome    `json:"outcome"`
	Retries        int        `json:"retries"`
	Chunks         int        `json:"chunks"`
	Candles        int        `json:"candles"`
	Rejected       int        `json:"rejected"`
	DoneBackfill   bool       `json:"done_backfill"`
	MinSeen        model.Date `json:"min_seen_date"`
	MaxSeen        model.Date `json:"max_seen_date"`
	NextBackfillTo model.Date `json:"next_backfill_to_date"`
	CaughtUp       bool       `json:"caught_up"`
	LastError      string     `json:"last_error,omitempty"`
	Updated        time.Time  `json:"updated"`
}

func (u UnitStatus) key() string { return unitKey(u.InstrumentKey, u.Timeframe) }

func unitKey(instrumentKey, timeframe string) string {
	return instrumentKey + "\x00" + timeframe
}

// RunSummary aggregates one pass over the instrument universe.
type RunSummary struct {
	RunID       string       `json:"run_id"`
	Started     time.Time    `json:"started"`
	Finished    time.Time    `json:"finished"`
	Instruments int          `json:"instruments"`
	Completed   int          `json:"completed"`
	Retried     int          `json:"retried"`
	Deferred    int          `json:"deferred"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Interrupted int          `json:"interrupted"`
	Chunks      int          `json:"chunks"`
	Candles     int          `json:"candles"`
	Units       []UnitStatus `json:"units"`
}

func (s *RunSummary) add(u UnitStatus) {
	switch u.Outcome {
	case Completed:
		s.Completed++
	case Deferred:
		s.Deferred++
	case Failed:
		s.Failed++
	case Skipped:
		s.Skipped++
	case Interrupted:
		s.Interrupted++
	}
	s.Retried += u.Retries
	s.Chunks += u.Chunks
	s.Candles += u.Candles
	s.Units = append(s.Units, u)
}

// Done is the number of units that have reported.
func (s *RunSummary) Done() int {
	return s.Completed + s.Deferred + s.Failed + s.Skipped + s.Interrupted
}
