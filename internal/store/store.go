// Package store persists job metadata durably. The job record and its issue
// list are stored as separate JSON documents keyed by job id; the issues
// document is written on every validation pass and read preferentially as the
// freshest copy.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // register the sqlite driver
)

//go:embed migrations/001_initial.sql
var migration string

// ErrNotFound is returned when no document exists for a job id.
var ErrNotFound = errors.New("job document not found")

// Store is a document store backed by an embedded SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// In-memory databases are per-connection; keep a single connection so
	// the schema and all queries see the same data.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(migration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveJob upserts the job record document.
func (s *Store) SaveJob(ctx context.Context, jobID string, document []byte) error {
	const query = `INSERT INTO jobs (job_id, document) VALUES (?, ?)
		ON CONFLICT (job_id) DO UPDATE SET document = excluded.document,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	if _, err := s.db.ExecContext(ctx, query, jobID, string(document)); err != nil {
		return fmt.Errorf("save job %s: %w", jobID, err)
	}
	return nil
}

// LoadJob returns the job record document, or ErrNotFound.
func (s *Store) LoadJob(ctx context.Context, jobID string) ([]byte, error) {
	const query = `SELECT document FROM jobs WHERE job_id = ?`
	var document string
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return []byte(document), nil
}

// SaveIssues upserts the standalone issues document for a job.
func (s *Store) SaveIssues(ctx context.Context, jobID string, document []byte) error {
	const query = `INSERT INTO job_issues (job_id, document) VALUES (?, ?)
		ON CONFLICT (job_id) DO UPDATE SET document = excluded.document,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	if _, err := s.db.ExecContext(ctx, query, jobID, string(document)); err != nil {
		return fmt.Errorf("save issues for %s: %w", jobID, err)
	}
	return nil
}

// LoadIssues returns the standalone issues document, or ErrNotFound.
func (s *Store) LoadIssues(ctx context.Context, jobID string) ([]byte, error) {
	const query = `SELECT document FROM job_issues WHERE job_id = ?`
	var document string
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load issues for %s: %w", jobID, err)
	}
	return []byte(document), nil
}

// DeleteJob removes both documents for a job. Deleting an absent job is not
// an error.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_issues WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete issues for %s: %w", jobID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}
