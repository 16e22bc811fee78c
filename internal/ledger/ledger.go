// Package ledger records which jobs have completed so a re-delivered
// message is answered from the record instead of being processed again.
// The ledger is a single SQLite file (pure-Go driver, no cgo).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_jobs (
	job_id        TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	output_path   TEXT NOT NULL DEFAULT '',
	document_path TEXT NOT NULL DEFAULT '',
	completed_at  TEXT NOT NULL
)`

// Entry is one completed job.
type Entry struct {
	JobID        string
	Mode         string
	OutputPath   string
	DocumentPath string
	CompletedAt  time.Time
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path. Use ":memory:" for a
// throwaway ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// One connection keeps SQLite writes serialized and :memory: coherent.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init ledger %s: %w", path, err)
		}
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Lookup returns the entry for jobID and whether it exists.
func (l *Ledger) Lookup(ctx context.Context, jobID string) (Entry, bool, error) {
	var (
		e         Entry
		completed string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT job_id, mode, output_path, document_path, completed_at
		 FROM processed_jobs WHERE job_id = ?`, jobID,
	).Scan(&e.JobID, &e.Mode, &e.OutputPath, &e.DocumentPath, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", jobID, err)
	}
	e.CompletedAt, err = time.Parse(time.RFC3339Nano, completed)
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: bad timestamp %q: %w", jobID, completed, err)
	}
	return e, true, nil
}

// Record stores e, replacing any previous entry for the same job.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.JobID == "" {
		return errors.New("record: empty job id")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO processed_jobs (job_id, mode, output_path, document_path, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			mode = excluded.mode,
			output_path = excluded.output_path,
			document_path = excluded.document_path,
			completed_at = excluded.completed_at`,
		e.JobID, e.Mode, e.OutputPath, e.DocumentPath, e.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.JobID, err)
	}
	return nil
}

// Forget removes jobID so the next delivery is processed again.
func (l *Ledger) Forget(ctx context.Context, jobID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM processed_jobs WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("forget %s: %w", jobID, err)
	}
	return nil
}

// Count returns the number of recorded jobs.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
