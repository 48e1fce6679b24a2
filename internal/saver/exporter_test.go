package saver

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upstox-data/internal/model"
)

func sampleCandles(t *testing.T) []model.Candle {
	t.Helper()
	var out []model.Candle
	for i, ts := range []string{"2024-01-01T09:15:00+05:30", "2024-01-01T09:16:00+05:30"} {
		tm, err := model.ParseTimestamp(ts)
		require.NoError(t, err)
		out = append(out, model.Candle{Timestamp: tm, Open: 100, High: 101.5, Low: 99, Close: 100.25, Volume: int64(10 + i), OpenInterest: 7})
	}
	return out
}

func TestNewEncoder(t *testing.T) {
	assert.Equal(t, "csv", NewEncoder(" CSV ").Extension())
	assert.Equal(t, "parquet", NewEncoder("parquet").Extension())
	assert.Equal(t, "json", NewEncoder("json").Extension())
	assert.Nil(t, NewEncoder("xlsx"))
	assert.Panics(t, func() { MustEncoder("xlsx") })
}

func TestEncoders(t *testing.T) {
	rows := RowsOf(sampleCandles(t))

	var buf bytes.Buffer
	require.NoError(t, CSVEncoder{}.Encode(&buf, rows))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"2024-01-01T09:15:00+05:30", "1704080700000", "100", "101.5", "99", "100.25", "10", "7"}, records[1])

	buf.Reset()
	require.NoError(t, JSONEncoder{}.Encode(&buf, rows))
	var decoded []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rows, decoded)

	buf.Reset()
	require.NoError(t, ParquetEncoder{}.Encode(&buf, rows))
	back, err := parquet.Read[Row](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, rows, back)
}

func TestExporterWritesPerTimeframe(t *testing.T) {
	dir := t.TempDir()
	x := NewExporter(dir, CSVEncoder{}, nil)
	inst := model.Instrument{InstrumentKey: "NSE_EQ|INE774D01024", Segment: "NSE_EQ", TradingSymbol: "M&M"}

	st := model.TimeframeState{}
	st.Merge(sampleCandles(t))
	now := time.Now()
	rec := model.NewInstrumentRecord(inst, now).
		With("minutes|1", st, now).
		With("days|1", model.TimeframeState{}, now)

	require.NoError(t, x.Export(rec))

	path := filepath.Join(dir, "NSE_EQ", "M%26M", "minutes_1.csv")
	assert.Equal(t, path, x.Path(inst, model.Timeframe{Unit: "minutes", Interval: "1"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-01-01T09:16:00+05:30")

	_, err = os.Stat(filepath.Join(dir, "NSE_EQ", "M%26M", "days_1.csv"))
	assert.True(t, os.IsNotExist(err))
}
