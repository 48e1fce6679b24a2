package crawl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"upstox-data/internal/storage"
)

// ReportFile is written into the output directory after every run.
const ReportFile = ".lastrun.json"

func writeRunReport(w *storage.AtomicWriter, dir string, s RunSummary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, ReportFile)
	if err := w.Write(p, data); err != nil {
		return "", err
	}
	return p, nil
}

// joinFailedReasons renders the first few non-completed units for a log line.
func joinFailedReasons(units []UnitStatus) string {
	var failed []UnitStatus
	for _, u := range units {
		if u.Outcome == Failed || u.Outcome == Deferred {
			failed = append(failed, u)
		}
	}
	var b strings.Builder
	for i, u := range failed {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(u.Symbol)
		b.WriteString(" ")
		b.WriteString(u.Timeframe)
		b.WriteString(": ")
		b.WriteString(u.LastError)
		if i >= 4 && len(failed) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failed)-5))
			break
		}
	}
	return b.String()
}

// ReadRunReport loads the report the last run left in dir.
func ReadRunReport(dir string) (RunSummary, error) {
	var s RunSummary
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", ReportFile, err)
	}
	return s, nil
}
