package saver

import (
	"bytes"
	"fmt"
	"path/filepath"

	"upstox-data/internal/model"
	"upstox-data/internal/storage"
)

// Exporter writes <dir>/<segment>/<symbol>/<unit>_<interval>.<ext> for
// every timeframe of a record, replacing the previous export atomically.
type Exporter struct {
	dir    string
	enc    Encoder
	writer *storage.AtomicWriter
}

func NewExporter(dir string, enc Encoder, w *storage.AtomicWriter) *Exporter {
	if w == nil {
		w = storage.NewAtomicWriter()
	}
	return &Exporter{dir: dir, enc: enc, writer: w}
}

// Path is where the export of one timeframe lands.
func (x *Exporter) Path(inst model.Instrument, tf model.Timeframe) string {
	seg := inst.Segment
	if seg == "" {
		seg = "UNKNOWN"
	}
	name := storage.SafePathSegment(tf.Unit + "_" + tf.Interval + "." + x.enc.Extension())
	return filepath.Join(x.dir, storage.SafePathSegment(seg), storage.SafePathSegment(inst.Symbol()), name)
}

// Export rewrites every non-empty timeframe of rec.
func (x *Exporter) Export(rec *model.InstrumentRecord) error {
	for _, key := range rec.Keys() {
		tf, err := model.ParseTimeframe(key)
		if err != nil {
			return fmt.Errorf("export %s: %w", rec.Instrument.InstrumentKey, err)
		}
		st := rec.Timeframe(key)
		if st.Len() == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := x.enc.Encode(&buf, RowsOf(st.Candles())); err != nil {
			return fmt.Errorf("encode %s %s: %w", rec.Instrument.InstrumentKey, key, err)
		}
		if err := x.writer.Write(x.Path(rec.Instrument, tf), buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
