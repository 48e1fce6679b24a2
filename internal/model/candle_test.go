package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	c, err := ParseRow(RawCandleRow{"2025-01-01T00:00:00+05:30", 100.0, 105.0, 99.0, 103.0, 1000.0, 0.0})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T00:00:00+05:30", FormatTimestamp(c.Timestamp))
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, int64(1000), c.Volume)
	assert.Equal(t, "2025-01-01", DateOf(c.Timestamp).String())
}

func TestParseRow_AcceptsNumbersAndStrings(t *testing.T) {
	c, err := ParseRow(RawCandleRow{"2025-01-01T09:15:00+05:30", json.Number("10.5"), "11", 10.0, 10.5, 1.2e6})
	require.NoError(t, err)
	assert.Equal(t, 10.5, c.Open)
	assert.Equal(t, int64(1200000), c.Volume)
	assert.Zero(t, c.OpenInterest)
}

func TestParseRows_DropsOnlyInvalidRows(t *testing.T) {
	rows := []RawCandleRow{
		{"2025-01-01T00:00:00+05:30", 100.0, 105.0, 99.0, 103.0, 1000.0, 0.0},
		{"2025-01-02T00:00:00", 100.0, 105.0, 99.0, 103.0, 1000.0, 0.0}, // no offset
		{"2025-01-03T00:00:00+05:30", 100.0, 98.0, 99.0, 103.0, 1000.0, 0.0},
		{"2025-01-04T00:00:00+05:30", 100.0, 105.0},
		{"2025-01-05T00:00:00+05:30", math.NaN(), 105.0, 99.0, 103.0, 1000.0, 0.0},
		{"2025-01-06T00:00:00+05:30", 100.0, 105.0, 99.0, 103.0, -1.0, 0.0},
		{"2025-01-07T00:00:00+05:30", 100.0, 105.0, 99.0, 103.0, 1.0, 5.0},
	}

	candles, rejected := ParseRows(rows)

	require.Len(t, candles, 2)
	require.Len(t, rejected, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, []int{rejected[0].Index, rejected[1].Index, rejected[2].Index, rejected[3].Index, rejected[4].Index})
	assert.Equal(t, int64(5), candles[1].OpenInterest)
}

func TestParseRow_RejectsVolumeOutOfRange(t *testing.T) {
	for _, v := range []any{1e19, json.Number("9223372036854775808"), "-1e19"} {
		_, err := DecodeRow(RawCandleRow{"2025-01-01T09:15:00+05:30", 10.0, 11.0, 9.0, 10.0, v})
		assert.Error(t, err, "volume %v", v)

		_, err = DecodeRow(RawCandleRow{"2025-01-01T09:15:00+05:30", 10.0, 11.0, 9.0, 10.0, 1.0, v})
		assert.Error(t, err, "open interest %v", v)
	}

	_, rejected := ParseRows([]RawCandleRow{{"2025-01-01T09:15:00+05:30", 10.0, 11.0, 9.0, 10.0, 1e19, 0.0}})
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "out of int64 range")
}

func TestFormatTimestampKeepsFraction(t *testing.T) {
	a, err := ParseTimestamp("2025-01-01T09:15:00.250+05:30")
	require.NoError(t, err)
	b, err := ParseTimestamp("2025-01-01T09:15:00.750+05:30")
	require.NoError(t, err)

	assert.Equal(t, "2025-01-01T09:15:00.25+05:30", FormatTimestamp(a))
	assert.NotEqual(t, FormatTimestamp(a), FormatTimestamp(b))

	back, err := ParseTimestamp(FormatTimestamp(b))
	require.NoError(t, err)
	assert.True(t, back.Equal(b))
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" Minutes|015 ")
	require.NoError(t, err)
	assert.Equal(t, "minutes|15", tf.Key())
	assert.Equal(t, Span{Months: 1}, tf.DefaultChunk())
	assert.Equal(t, "2022-01-01", tf.Availability().String())

	tf, err = ParseTimeframe("days:1")
	require.NoError(t, err)
	assert.Equal(t, Span{Years: 10}, tf.DefaultChunk())

	_, err = ParseTimeframe("seconds|1")
	assert.Error(t, err)
	_, err = ParseTimeframe("days|0")
	assert.Error(t, err)

	tfs, err := ParseTimeframes([]string{"days|1", "days|1", "", "hours|4"})
	require.NoError(t, err)
	assert.Len(t, tfs, 2)
}

func TestDateAndSpan(t *testing.T) {
	d := MustParseDate("2024-01-01")
	assert.Equal(t, "2023-01-01", d.Sub(Span{Years: 1}).String())
	assert.Equal(t, "2023-12-31", d.AddDays(-1).String())
	assert.Equal(t, 365, MustParseDate("2023-01-01").DaysUntil(d))
	assert.Equal(t, "2023-12-29", d.PrevWeekday().String()) // Monday -> Friday

	s, err := ParseSpan("1y6m")
	require.NoError(t, err)
	assert.Equal(t, Span{Years: 1, Months: 6}, s)
	_, err = ParseSpan("10")
	assert.Error(t, err)

	raw, err := json.Marshal(struct{ D Date }{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"D":null}`, string(raw))

	var back struct{ D Date }
	require.NoError(t, json.Unmarshal([]byte(`{"D":"2024-02-29"}`), &back))
	assert.Equal(t, "2024-02-29", back.D.String())
}
