// Package runlog keeps the ledger of ingestion runs in SQLite.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // cgo-free driver

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain/ingest"
)

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// InterruptedError is recorded on runs left running by a process that
// exited before finishing them.
const InterruptedError = "interrupted: process exited before the run finished"

const schema = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER,
	status        TEXT NOT NULL,
	snapshot_date TEXT NOT NULL DEFAULT '',
	inserted      INTEGER NOT NULL DEFAULT 0,
	updated       INTEGER NOT NULL DEFAULT 0,
	unchanged     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	history       INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ingest_runs_started_at ON ingest_runs (started_at DESC);
`

// Store is the SQLite-backed run ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the database file (and its directory) if needed and applies the schema.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// A second pooled connection to ":memory:" would see an empty database.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ledger pragma %q: %w", p, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	// The ledger belongs to one process; nothing is running when it opens.
	if _, err := conn.Exec(
		`UPDATE ingest_runs SET status = ?, finished_at = ?, error = ? WHERE status = ?`,
		string(ingest.StatusFailed), time.Now().UnixMilli(), InterruptedError, string(ingest.StatusRunning),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ledger recover running runs: %w", err)
	}

	return &Store{db: conn, path: path}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the file the ledger lives in.
func (s *Store) Path() string { return s.path }

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpQuery, Err: err}
	}
	return nil
}

// Start records a run in the running state.
func (s *Store) Start(ctx context.Context, run ingest.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), string(ingest.StatusRunning),
	)
	if err != nil {
		return &db.Error{Op: db.OpInsert, Err: fmt.Errorf("start run %s: %w", run.ID, err)}
	}
	return nil
}

// Finish stores the final status, counts and error of a run.
func (s *Store) Finish(ctx context.Context, run ingest.Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET finished_at = ?, status = ?, snapshot_date = ?,
		    inserted = ?, updated = ?, unchanged = ?, failed = ?, history = ?, error = ?
		WHERE id = ?`,
		finished.UnixMilli(), string(run.Status), run.SnapshotDate,
		run.Counts.Inserted, run.Counts.Updated, run.Counts.Unchanged, run.Counts.Failed, run.Counts.History,
		run.Error, run.ID,
	)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: fmt.Errorf("finish run %s: %w", run.ID, err)}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &db.Error{Op: db.OpExec, Err: fmt.Errorf("finish run %s: %w", run.ID, db.ErrNotFound)}
	}
	return nil
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (ingest.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.Run{}, &db.Error{Op: db.OpQuery, Err: db.ErrNotFound}
	}
	if err != nil {
		return ingest.Run{}, &db.Error{Op: db.OpQuery, Err: err}
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]ingest.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	runs := make([]ingest.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return runs, nil
}

// LastSuccess returns the newest succeeded run, false when there is none.
func (s *Store) LastSuccess(ctx context.Context) (ingest.Run, bool, error) {
	row := s.db.QueryRowContext(ctx,
		selectRuns+` WHERE status = ? ORDER BY started_at DESC LIMIT 1`, string(ingest.StatusSucceeded))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.Run{}, false, nil
	}
	if err != nil {
		return ingest.Run{}, false, &db.Error{Op: db.OpQuery, Err: err}
	}
	return run, true, nil
}

const selectRuns = `
	SELECT id, started_at, finished_at, status, snapshot_date,
	       inserted, updated, unchanged, failed, history, error
	FROM ingest_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (ingest.Run, error) {
	var (
		run      ingest.Run
		started  int64
		finished sql.NullInt64
		status   string
	)
	err := sc.Scan(&run.ID, &started, &finished, &status, &run.SnapshotDate,
		&run.Counts.Inserted, &run.Counts.Updated, &run.Counts.Unchanged, &run.Counts.Failed, &run.Counts.History,
		&run.Error)
	if err != nil {
		return ingest.Run{}, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	run.Status = ingest.Status(status)
	return run, nil
}
