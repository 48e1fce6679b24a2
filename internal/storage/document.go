package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"upstox-data/internal/model"
)

var (
	ErrCorruptRecord     = errors.New("corrupt instrument record")
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

const timestampLayoutUTC = "2006-01-02T15:04:05.000000Z"

// tuple widths per schema version; v1 predates open interest
var tupleWidth = map[int]int{
	1: 6,
	2: 7,
}

type document struct {
	Instrument     model.Instrument        `json:"instrument"`
	Timeframes     map[string]timeframeDoc `json:"timeframes"`
	LastUpdatedUTC string                  `json:"last_updated_utc"`
	SchemaVersion  int                     `json:"schema_version"`
}

type timeframeDoc struct {
	MinSeenDate        model.Date `json:"min_seen_date"`
	MaxSeenDate        model.Date `json:"max_seen_date"`
	NextBackfillToDate model.Date `json:"next_backfill_to_date"`
	DoneBackfill       bool       `json:"done_backfill"`
	Candles            []rawTuple `json:"candles"`
}

type rawTuple []any

// EncodeRecord renders the record in the current schema.
func EncodeRecord(rec *model.InstrumentRecord) ([]byte, error) {
	doc := document{
		Instrument:     rec.Instrument,
		Timeframes:     make(map[string]timeframeDoc, len(rec.Timeframes)),
		LastUpdatedUTC: rec.LastUpdatedUTC.UTC().Format(timestampLayoutUTC),
		SchemaVersion:  model.SchemaVersion,
	}
	for key, st := range rec.Timeframes {
		candles := st.Candles()
		tuples := make([]rawTuple, len(candles))
		for i, c := range candles {
			tuples[i] = rawTuple{
				model.FormatTimestamp(c.Timestamp),
				c.Open, c.High, c.Low, c.Close,
				c.Volume, c.OpenInterest,
			}
		}
		doc.Timeframes[key] = timeframeDoc{
			MinSeenDate:        st.MinSeen,
			MaxSeenDate:        st.MaxSeen,
			NextBackfillToDate: st.NextBackfillTo,
			DoneBackfill:       st.DoneBackfill,
			Candles:            tuples,
		}
	}
	return json.Marshal(doc)
}

// DecodeRecord parses a stored record, migrating older schema versions.
func DecodeRecord(data []byte) (*model.InstrumentRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	width, ok := tupleWidth[doc.SchemaVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %d (this build reads 1..%d)", ErrUnsupportedSchema, doc.SchemaVersion, model.SchemaVersion)
	}

	rec := &model.InstrumentRecord{
		Instrument:    doc.Instrument,
		Timeframes:    make(map[string]model.TimeframeState, len(doc.Timeframes)),
		SchemaVersion: model.SchemaVersion,
	}
	if doc.LastUpdatedUTC != "" {
		if t, err := parseUpdated(doc.LastUpdatedUTC); err == nil {
			rec.LastUpdatedUTC = t
		}
	}
	for key, tf := range doc.Timeframes {
		candles := make([]model.Candle, 0, len(tf.Candles))
		for i, tuple := range tf.Candles {
			if len(tuple) != width {
				return nil, fmt.Errorf("%w: %s candle %d has %d fields, schema %d wants %d",
					ErrCorruptRecord, key, i, len(tuple), doc.SchemaVersion, width)
			}
			c, err := model.DecodeRow(model.RawCandleRow(tuple))
			if err != nil {
				return nil, fmt.Errorf("%w: %s candle %d: %v", ErrCorruptRecord, key, i, err)
			}
			candles = append(candles, c)
		}
		st, err := model.RestoreTimeframeState(tf.NextBackfillToDate, tf.DoneBackfill, candles)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
		}
		rec.Timeframes[key] = st
	}
	return rec, nil
}

// older writers emitted naive isoformat() + "Z"
func parseUpdated(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999Z", s)
}
