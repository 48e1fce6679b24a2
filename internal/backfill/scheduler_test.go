package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upstox-data/internal/model"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// consume simulates a successful fetch: one candle on the window's last day.
func consume(s Scheduler, st *model.TimeframeState, w Window) {
	if !w.Empty() {
		last := w.Last().Time()
		st.Merge([]model.Candle{{
			Timestamp: time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, ist),
			Open:      1, High: 1, Low: 1, Close: 1,
		}})
	}
	s.Advance(st, w)
}

func TestScheduler_FreshInstrumentYearChunks(t *testing.T) {
	s := Scheduler{Horizon: model.MustParseDate("2020-01-01"), Chunk: model.Span{Years: 1}}
	today := model.MustParseDate("2024-01-01")
	var st model.TimeframeState

	var backfills []Window
	for !st.DoneBackfill {
		w, ok := s.Next(st, today)
		require.True(t, ok)
		require.Equal(t, Backfill, w.Mode)
		backfills = append(backfills, w)
		consume(s, &st, w)
		require.LessOrEqual(t, len(backfills), 10)
	}

	require.Len(t, backfills, 4)
	assert.Equal(t, "2023-01-01", backfills[0].From.String())
	assert.Equal(t, "2024-01-01", backfills[0].To.String())
	assert.Equal(t, "2020-01-01", backfills[3].From.String())
	assert.True(t, backfills[3].Final)
	for i := 0; i < 3; i++ {
		assert.False(t, backfills[i].Final)
		assert.Equal(t, backfills[i].From, backfills[i+1].To, "windows must be contiguous")
	}

	w, ok := s.Next(st, today)
	require.True(t, ok)
	assert.Equal(t, TopUp, w.Mode)
	assert.Equal(t, "2024-01-01", w.Last().String())
	consume(s, &st, w)

	_, ok = s.Next(st, today)
	assert.False(t, ok)
	assert.True(t, s.CaughtUp(st, today))
}

func TestScheduler_TerminationBound(t *testing.T) {
	start := model.MustParseDate("2024-03-15")
	for _, tc := range []struct {
		horizon string
		days    int
	}{
		{"2024-01-01", 30},
		{"2023-03-15", 365},
		{"2020-06-30", 90},
		{"2024-03-14", 7},
	} {
		s := Scheduler{Horizon: model.MustParseDate(tc.horizon), Chunk: model.Span{Days: tc.days}}
		gap := s.Horizon.DaysUntil(start)
		bound := (gap + tc.days - 1) / tc.days

		var st model.TimeframeState
		calls := 0
		for !st.DoneBackfill {
			w, ok := s.Next(st, start)
			require.True(t, ok)
			calls++
			s.Advance(&st, w)
			require.LessOrEqual(t, calls, bound, "horizon %s chunk %d", tc.horizon, tc.days)
		}
		assert.Equal(t, s.Horizon, st.NextBackfillTo)
	}
}

func TestScheduler_EmptyPagesDoNotEndBackfill(t *testing.T) {
	s := Scheduler{Horizon: model.MustParseDate("2024-01-01"), Chunk: model.Span{Days: 2}}
	today := model.MustParseDate("2024-01-15")
	var st model.TimeframeState

	w, _ := s.Next(st, today)
	s.Advance(&st, w) // nothing merged: weekend or holiday

	assert.False(t, st.DoneBackfill)
	next, ok := s.Next(st, today)
	require.True(t, ok)
	assert.Equal(t, w.From, next.To)
}

func TestScheduler_PointerAtHorizonCompletesWithoutFetch(t *testing.T) {
	s := Scheduler{Horizon: model.MustParseDate("2022-01-01"), Chunk: model.Span{Months: 1}}
	st, err := model.RestoreTimeframeState(model.MustParseDate("2022-01-01"), false, nil)
	require.NoError(t, err)

	w, ok := s.Next(st, model.MustParseDate("2024-01-01"))
	require.True(t, ok)
	assert.True(t, w.Final)
	assert.True(t, w.Empty())
}

func TestScheduler_TopUpCurrentReturnsNothing(t *testing.T) {
	s := Scheduler{Horizon: model.MustParseDate("2020-01-01"), Chunk: model.Span{Years: 1}, CaughtUpDays: 1}
	st, err := model.RestoreTimeframeState(model.Date{}, true, []model.Candle{{
		Timestamp: time.Date(2024, 5, 9, 0, 0, 0, 0, ist), Open: 1, High: 1, Low: 1, Close: 1,
	}})
	require.NoError(t, err)

	_, ok := s.Next(st, model.MustParseDate("2024-05-10"))
	assert.False(t, ok)

	w, ok := s.Next(st, model.MustParseDate("2024-05-13"))
	require.True(t, ok)
	assert.Equal(t, "2024-05-10", w.From.String())
	assert.Equal(t, "2024-05-13", w.Last().String())
}

func TestScheduler_TopUpChunksForward(t *testing.T) {
	s := Scheduler{Horizon: model.MustParseDate("2020-01-01"), Chunk: model.Span{Months: 1}}
	st, err := model.RestoreTimeframeState(model.Date{}, true, []model.Candle{{
		Timestamp: time.Date(2024, 1, 31, 15, 29, 0, 0, ist), Open: 1, High: 1, Low: 1, Close: 1,
	}})
	require.NoError(t, err)
	today := model.MustParseDate("2024-03-10")

	var windows []Window
	for {
		w, ok := s.Next(st, today)
		if !ok {
			break
		}
		windows = append(windows, w)
		s.Advance(&st, w) // empty pages: only the cursor moves
		require.Less(t, len(windows), 10)
	}

	require.Len(t, windows, 2)
	assert.Equal(t, "2024-02-01", windows[0].From.String())
	assert.Equal(t, "2024-02-29", windows[0].Last().String())
	assert.Equal(t, "2024-03-10", windows[1].Last().String())
	assert.False(t, s.CaughtUp(st, today))
}

func TestNew_ClampsHorizonToAvailability(t *testing.T) {
	s := New(model.Timeframe{Unit: "minutes", Interval: "1"}, model.MustParseDate("2000-01-01"), model.Span{}, 0)
	assert.Equal(t, "2022-01-01", s.Horizon.String())
	assert.Equal(t, model.Span{Months: 1}, s.Chunk)
}
