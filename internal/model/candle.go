package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Candle is one OHLCV bar. Within a timeframe it is identified by the
// instant of Timestamp; the original UTC offset is kept for persistence.
type Candle struct {
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	OpenInterest int64
}

// RawCandleRow is a vendor row: [timestamp, open, high, low, close, volume, open_interest].
type RawCandleRow []any

// RowError describes a row dropped during intake.
type RowError struct {
	Index  int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Index, e.Reason)
}

// Validate checks the candle's own fields.
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	for _, p := range [...]struct {
		name string
		v    float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%s is not finite", p.name)
		}
		if p.v < 0 {
			return fmt.Errorf("%s is negative", p.name)
		}
	}
	if c.Volume < 0 {
		return fmt.Errorf("volume is negative")
	}
	if c.OpenInterest < 0 {
		return fmt.Errorf("open interest is negative")
	}
	if c.High < c.Low {
		return fmt.Errorf("high %v below low %v", c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("open %v outside [%v, %v]", c.Open, c.Low, c.High)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("close %v outside [%v, %v]", c.Close, c.Low, c.High)
	}
	return nil
}

// ParseRow converts and validates one vendor row. Open interest is optional.
func ParseRow(row RawCandleRow) (Candle, error) {
	c, err := DecodeRow(row)
	if err != nil {
		return Candle{}, err
	}
	if err := c.Validate(); err != nil {
		return Candle{}, err
	}
	return c, nil
}

// DecodeRow converts a row without price sanity checks. Stored history is
// read this way: it was accepted once and is not re-judged on load.
func DecodeRow(row RawCandleRow) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("want at least 6 fields, got %d", len(row))
	}
	ts, ok := row[0].(string)
	if !ok {
		return Candle{}, fmt.Errorf("timestamp is %T, want string", row[0])
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return Candle{}, err
	}
	var prices [4]float64
	for i := range prices {
		f, err := toFloat(row[i+1])
		if err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		prices[i] = f
	}
	vol, err := toInt(row[5])
	if err != nil {
		return Candle{}, fmt.Errorf("volume: %w", err)
	}
	var oi int64
	if len(row) > 6 && row[6] != nil {
		if oi, err = toInt(row[6]); err != nil {
			return Candle{}, fmt.Errorf("open interest: %w", err)
		}
	}
	return Candle{
		Timestamp:    t,
		Open:         prices[0],
		High:         prices[1],
		Low:          prices[2],
		Close:        prices[3],
		Volume:       vol,
		OpenInterest: oi,
	}, nil
}

// ParseRows keeps every valid row and reports the dropped ones, so one bad
// row never discards the rest of a chunk.
func ParseRows(rows []RawCandleRow) ([]Candle, []RowError) {
	out := make([]Candle, 0, len(rows))
	var rejected []RowError
	for i, r := range rows {
		c, err := ParseRow(r)
		if err != nil {
			rejected = append(rejected, RowError{Index: i, Reason: err.Error()})
			continue
		}
		out = append(out, c)
	}
	return out, rejected
}

// ParseTimestamp parses an ISO-8601 timestamp that carries an explicit offset.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatTimestamp renders the timestamp with its own offset. Fractional
// seconds are kept so distinct instants never collapse into one.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, err
		}
		f = x
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return f, nil
}

// toInt accepts integers and floats (volumes sometimes arrive as 1.2e6).
func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	// MaxInt64 rounds up to 2^63 as a float64.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v out of int64 range", v)
	}
	return int64(f), nil
}
