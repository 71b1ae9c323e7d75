// Package history persists run summaries to a local SQLite database so
// past runs can be inspected after the process exits.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/sheetflow/pkg/orchestrator"
)

// Store records run summaries.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (and creates if needed) the history database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "history").Logger()}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			ref TEXT NOT NULL,
			sheet_name TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'column',
			total INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores one run summary. Re-recording the same run replaces the
// earlier row, so a retried write after a crash stays idempotent.
func (s *Store) Record(summary *orchestrator.Summary) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs
			(run_id, ref, sheet_name, mode, total, completed, failed, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.Ref,
		summary.SheetName,
		string(summary.Mode),
		summary.Total,
		summary.Completed,
		summary.Failed,
		summary.Skipped,
		summary.StartedAt.UnixMilli(),
		summary.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", summary.RunID, err)
	}
	s.log.Debug().Str("run_id", summary.RunID).Int("total", summary.Total).Msg("run recorded")
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(limit int) ([]orchestrator.Summary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT run_id, ref, sheet_name, mode, total, completed, failed, skipped, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.Summary
	for rows.Next() {
		var sum orchestrator.Summary
		var mode string
		var startedAt, finishedAt int64
		if err := rows.Scan(
			&sum.RunID, &sum.Ref, &sum.SheetName, &mode,
			&sum.Total, &sum.Completed, &sum.Failed, &sum.Skipped,
			&startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.Mode = orchestrator.Mode(mode)
		sum.StartedAt = time.UnixMilli(startedAt)
		sum.FinishedAt = time.UnixMilli(finishedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
