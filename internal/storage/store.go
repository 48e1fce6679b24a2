package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"upstox-data/internal/model"
)

// ErrKeyMismatch is returned when the file an instrument maps to belongs to
// a different instrument key.
var ErrKeyMismatch = errors.New("record belongs to another instrument")

const unknownSegment = "UNKNOWN"

// RecordStore keeps one JSON document per instrument under root.
type RecordStore struct {
	root   string
	writer *AtomicWriter
	now    func() time.Time
}

func NewRecordStore(root string, writer *AtomicWriter) *RecordStore {
	if writer == nil {
		writer = NewAtomicWriter()
	}
	return &RecordStore{root: root, writer: writer, now: time.Now}
}

// Root is the output directory.
func (s *RecordStore) Root() string { return s.root }

// Writer exposes the atomic writer so sidecar files share its policy.
func (s *RecordStore) Writer() *AtomicWriter { return s.writer }

// Path is <root>/<segment>/<symbol>.json with both parts made filesystem safe.
func (s *RecordStore) Path(inst model.Instrument) string {
	seg := inst.Segment
	if seg == "" {
		seg = unknownSegment
	}
	return filepath.Join(s.root, SafePathSegment(seg), SafePathSegment(inst.Symbol())+".json")
}

// Load returns the stored record, or a fresh one when none exists yet. A
// file that exists but cannot be read or decoded is an error; callers must
// not overwrite it.
func (s *RecordStore) Load(inst model.Instrument) (*model.InstrumentRecord, error) {
	path := s.Path(inst)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewInstrumentRecord(inst, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if stored := rec.Instrument.InstrumentKey; stored != "" && stored != inst.InstrumentKey {
		return nil, fmt.Errorf("load %s: %w: %s", path, ErrKeyMismatch, stored)
	}
	rec.Instrument = inst
	return rec, nil
}

// Save writes the record atomically.
func (s *RecordStore) Save(rec *model.InstrumentRecord) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Instrument.InstrumentKey, err)
	}
	return s.writer.Write(s.Path(rec.Instrument), data)
}

// Scan lists the instruments of every stored record. Unreadable files are
// logged and skipped.
func (s *RecordStore) Scan() ([]model.Instrument, error) {
	var out []model.Instrument
	segments, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		if !seg.IsDir() || strings.HasPrefix(seg.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.root, seg.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
				continue
			}
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("scan: read failed", "path", path, "err", err)
				continue
			}
			rec, err := DecodeRecord(data)
			if err != nil {
				slog.Warn("scan: decode failed", "path", path, "err", err)
				continue
			}
			if rec.Instrument.InstrumentKey == "" {
				continue
			}
			out = append(out, rec.Instrument)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentKey < out[j].InstrumentKey })
	return out, nil
}
