// Package history persists terminal job observations to a local SQLite
// database so past runs stay inspectable after the session ends.
//
// The tracker itself needs no persistence; history is an operator
// convenience backing the `jobs list` and `jobs gc` commands.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// Entry is one recorded terminal observation.
type Entry struct {
	JobID      string     `json:"job_id"`
	Type       job.Type   `json:"type"`
	Status     job.Status `json:"status"`
	ContextKey string     `json:"context_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Store is a SQLite-backed history log.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database.
//
// Parent directories are created. WAL and busy_timeout are applied for
// predictable CLI behavior; the CLI and a watch session may touch the
// file concurrently.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS job_history (
		job_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		context_key TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_job_history_recorded ON job_history(recorded_at);`)
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one terminal observation. Duplicate observations of
// the same job id (push and poll both resolving) upsert in place, so
// recording stays idempotent.
func (s *Store) Record(ctx context.Context, j job.Job) error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if !j.Terminal() {
		return fmt.Errorf("job %s is not terminal (%s)", j.ID, j.Status)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO job_history
		(job_id, type, status, context_key, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			recorded_at = excluded.recorded_at;`,
		j.ID, string(j.Type), string(j.Status), j.Context(), j.Error,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record job history: %w", err)
	}
	return nil
}

// List returns entries newest-first, bounded to limit (0 means 100).
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, type, status, context_key, error, recorded_at
		FROM job_history ORDER BY recorded_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var typ, status, recorded string
		if err := rows.Scan(&e.JobID, &typ, &status, &e.ContextKey, &e.Error, &recorded); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Type = job.Type(typ)
		e.Status = job.Status(status)
		if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			e.RecordedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GC deletes entries older than maxAge and returns how many went away.
func (s *Store) GC(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, errors.New("max age must be positive")
	}
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_history WHERE recorded_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("gc job history: %w", err)
	}
	return res.RowsAffected()
}
