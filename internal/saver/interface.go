// Package saver mirrors stored candles into analysis-friendly files.
package saver

import (
	"fmt"
	"io"
	"strings"

	"upstox-data/internal/model"
)

// Row is the flat candle DTO written by every encoder.
type Row struct {
	Time         string  `json:"time" parquet:"time"`
	UnixMilli    int64   `json:"t" parquet:"t"`
	Open         float64 `json:"o" parquet:"o"`
	High         float64 `json:"h" parquet:"h"`
	Low          float64 `json:"l" parquet:"l"`
	Close        float64 `json:"c" parquet:"c"`
	Volume       int64   `json:"v" parquet:"v"`
	OpenInterest int64   `json:"oi" parquet:"oi"`
}

// RowsOf flattens candles keeping their order.
func RowsOf(candles []model.Candle) []Row {
	rows := make([]Row, len(candles))
	for i, c := range candles {
		rows[i] = Row{
			Time:         model.FormatTimestamp(c.Timestamp),
			UnixMilli:    c.Timestamp.UnixMilli(),
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			Volume:       c.Volume,
			OpenInterest: c.OpenInterest,
		}
	}
	return rows
}

// Encoder renders rows in one file format.
type Encoder interface {
	Encode(w io.Writer, rows []Row) error
	Extension() string
}

// NewEncoder returns the encoder for format (csv, parquet, json), or nil if
// the format is not supported.
func NewEncoder(format string) Encoder {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVEncoder{}
	case "parquet":
		return ParquetEncoder{}
	case "json":
		return JSONEncoder{}
	default:
		return nil
	}
}

// MustEncoder is NewEncoder that panics on an unknown format.
func MustEncoder(format string) Encoder {
	e := NewEncoder(format)
	if e == nil {
		panic(fmt.Sprintf("saver: unsupported format %q (use csv, parquet, json)", format))
	}
	return e
}
