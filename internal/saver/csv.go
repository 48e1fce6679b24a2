package saver

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVEncoder writes a header row then one line per candle.
type CSVEncoder struct{}

func (CSVEncoder) Extension() string { return "csv" }

func (CSVEncoder) Encode(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "t", "o", "h", "l", "c", "v", "oi"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Time,
			strconv.FormatInt(r.UnixMilli, 10),
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			strconv.FormatInt(r.Volume, 10),
			strconv.FormatInt(r.OpenInterest, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
