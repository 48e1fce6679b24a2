package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"upstox-data/internal/crawl"
	"upstox-data/internal/recorder"
)

// PrintStatus writes the latest state of every unit. The status database
// is preferred; without one the report of the last run is used.
func PrintStatus(ctx context.Context, w io.Writer, cfg *Config, rec recorder.Recorder) error {
	units, err := rec.LatestUnits(ctx)
	if err != nil {
		return fmt.Errorf("read status db: %w", err)
	}
	if len(units) == 0 {
		s, err := crawl.ReadRunReport(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("no status recorded yet: %w", err)
		}
		fmt.Fprintf(w, "run %s finished %s: %d completed, %d deferred, %d failed, %d skipped, %d interrupted\n",
			s.RunID, s.Finished.Format("2006-01-02 15:04:05"), s.Completed, s.Deferred, s.Failed, s.Skipped, s.Interrupted)
		units = s.Units
	}
	return writeUnits(w, units)
}

func writeUnits(w io.Writer, units []crawl.UnitStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tTIMEFRAME\tOUTCOME\tMIN\tMAX\tNEXT_TO\tDONE\tERROR")
	for _, u := range units {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			u.Symbol, u.Timeframe, u.Outcome, dateCell(u.MinSeen.String()), dateCell(u.MaxSeen.String()),
			dateCell(u.NextBackfillTo.String()), u.DoneBackfill, u.LastError)
	}
	return tw.Flush()
}

func dateCell(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
