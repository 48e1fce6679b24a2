package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"upstox-data/internal/crawl"
	"upstox-data/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create status db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the status command read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			started     INTEGER NOT NULL,
			finished    INTEGER NOT NULL,
			instruments INTEGER,
			completed   INTEGER,
			retried     INTEGER,
			deferred    INTEGER,
			failed      INTEGER,
			skipped     INTEGER,
			interrupted INTEGER,
			chunks      INTEGER,
			candles     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started)`,

		`CREATE TABLE IF NOT EXISTS unit_history (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL,
			instrument_key TEXT NOT NULL,
			timeframe      TEXT NOT NULL,
			outcome        TEXT NOT NULL,
			retries        INTEGER,
			chunks         INTEGER,
			candles        INTEGER,
			rejected       INTEGER,
			last_error     TEXT,
			updated        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unit_history_key ON unit_history(instrument_key, timeframe)`,

		`CREATE TABLE IF NOT EXISTS unit_latest (
			instrument_key   TEXT NOT NULL,
			timeframe        TEXT NOT NULL,
			run_id           TEXT NOT NULL,
			symbol           TEXT,
			segment          TEXT,
			outcome          TEXT NOT NULL,
			retries          INTEGER,
			chunks           INTEGER,
			candles          INTEGER,
			rejected         INTEGER,
			done_backfill    INTEGER,
			min_seen         TEXT,
			max_seen         TEXT,
			next_backfill_to TEXT,
			caught_up        INTEGER,
			last_error       TEXT,
			updated          INTEGER NOT NULL,
			PRIMARY KEY (instrument_key, timeframe)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordUnit(ctx context.Context, runID string, u crawl.UnitStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updated := u.Updated.UnixMilli()
	if _, err := tx.ExecContext(ctx, `INSERT INTO unit_history
		(run_id, instrument_key, timeframe, outcome, retries, chunks, candles, rejected, last_error, updated)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		runID, u.InstrumentKey, u.Timeframe, string(u.Outcome),
		u.Retries, u.Chunks, u.Candles, u.Rejected, u.LastError, updated,
	); err != nil {
		return fmt.Errorf("insert unit history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO unit_latest
		(instrument_key, timeframe, run_id, symbol, segment, outcome, retries, chunks, candles, rejected,
		 done_backfill, min_seen, max_seen, next_backfill_to, caught_up, last_error, updated)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(instrument_key, timeframe) DO UPDATE SET
			run_id=excluded.run_id, symbol=excluded.symbol, segment=excluded.segment,
			outcome=excluded.outcome, retries=excluded.retries, chunks=excluded.chunks,
			candles=excluded.candles, rejected=excluded.rejected,
			done_backfill=excluded.done_backfill, min_seen=excluded.min_seen,
			max_seen=excluded.max_seen, next_backfill_to=excluded.next_backfill_to,
			caught_up=excluded.caught_up, last_error=excluded.last_error, updated=excluded.updated`,
		u.InstrumentKey, u.Timeframe, runID, u.Symbol, u.Segment, string(u.Outcome),
		u.Retries, u.Chunks, u.Candles, u.Rejected,
		u.DoneBackfill, dateText(u.MinSeen), dateText(u.MaxSeen), dateText(u.NextBackfillTo),
		u.CaughtUp, u.LastError, updated,
	); err != nil {
		return fmt.Errorf("upsert unit: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordRun(ctx context.Context, s crawl.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, started, finished, instruments, completed, retried, deferred, failed, skipped, interrupted, chunks, candles)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.RunID, s.Started.UnixMilli(), s.Finished.UnixMilli(), s.Instruments,
		s.Completed, s.Retried, s.Deferred, s.Failed, s.Skipped, s.Interrupted, s.Chunks, s.Candles,
	)
	return err
}

// LatestUnits returns the last recorded status of every unit.
func (r *SQLiteRecorder) LatestUnits(ctx context.Context) ([]crawl.UnitStatus, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		instrument_key, timeframe, symbol, segment, outcome, retries, chunks, candles, rejected,
		done_backfill, min_seen, max_seen, next_backfill_to, caught_up, last_error, updated
		FROM unit_latest ORDER BY instrument_key, timeframe`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []crawl.UnitStatus
	for rows.Next() {
		var (
			u                          crawl.UnitStatus
			outcome                    string
			minSeen, maxSeen, nextBack string
			updated                    int64
		)
		if err := rows.Scan(&u.InstrumentKey, &u.Timeframe, &u.Symbol, &u.Segment, &outcome,
			&u.Retries, &u.Chunks, &u.Candles, &u.Rejected,
			&u.DoneBackfill, &minSeen, &maxSeen, &nextBack, &u.CaughtUp, &u.LastError, &updated); err != nil {
			return nil, err
		}
		u.Outcome = crawl.Outcome(outcome)
		u.Updated = time.UnixMilli(updated).UTC()
		if u.MinSeen, err = model.ParseDate(minSeen); err != nil {
			return nil, err
		}
		if u.MaxSeen, err = model.ParseDate(maxSeen); err != nil {
			return nil, err
		}
		if u.NextBackfillTo, err = model.ParseDate(nextBack); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LastRun returns the most recent run summary without units.
func (r *SQLiteRecorder) LastRun(ctx context.Context) (crawl.RunSummary, bool, error) {
	var (
		s                 crawl.RunSummary
		started, finished int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT
		run_id, started, finished, instruments, completed, retried, deferred, failed, skipped, interrupted, chunks, candles
		FROM runs ORDER BY started DESC LIMIT 1`).Scan(
		&s.RunID, &started, &finished, &s.Instruments, &s.Completed, &s.Retried,
		&s.Deferred, &s.Failed, &s.Skipped, &s.Interrupted, &s.Chunks, &s.Candles)
	if err == sql.ErrNoRows {
		return crawl.RunSummary{}, false, nil
	}
	if err != nil {
		return crawl.RunSummary{}, false, err
	}
	s.Started = time.UnixMilli(started).UTC()
	s.Finished = time.UnixMilli(finished).UTC()
	return s, true, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func dateText(d model.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
