package saver

import (
	"io"

	"github.com/parquet-go/parquet-go"
)

// ParquetEncoder writes one Parquet file per timeframe.
type ParquetEncoder struct{}

func (ParquetEncoder) Extension() string { return "parquet" }

func (ParquetEncoder) Encode(w io.Writer, rows []Row) error {
	return parquet.Write(w, rows)
}
