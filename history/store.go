// Package history persists pass summaries in SQLite so past runs can be
// listed after the process restarts.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/s0up4200/seedkeeper/engine"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly
const schemaVersion = 1

// timeLayout has a fixed width so stored times sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	// ErrNotFound is returned when no pass has the requested run id
	ErrNotFound = errors.New("pass not found")
	// ErrSchemaMismatch means the database was written by another version
	ErrSchemaMismatch = errors.New("history schema version mismatch")
)

// Entry is one recorded pass
type Entry struct {
	ID      int64
	Source  string
	Failure string
	Summary *engine.Summary
}

// Store records passes in a SQLite database
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps writes from the scheduler and the API
	// serialized
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if exists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has %d, expected %d (remove %s to start over)", ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Record stores a finished pass. runErr is the error the pass failed with,
// if any.
func (s *Store) Record(ctx context.Context, source string, summary *engine.Summary, runErr error) error {
	if summary == nil {
		return errors.New("no summary to record")
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	var failure any
	if runErr != nil {
		failure = runErr.Error()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO passes (
            run_id, config, source, commands, dry_run, started_at, finished_at,
            torrents, error_count, failure, summary_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.Config,
		source,
		strings.Join(summary.Commands, ","),
		summary.DryRun,
		formatTime(summary.StartedAt),
		formatTime(summary.FinishedAt),
		summary.Torrents,
		len(summary.Errors),
		failure,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

// List returns the most recent passes, newest first. A limit of zero or
// less returns every pass.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT id, source, failure, summary_json FROM passes ORDER BY started_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return entries, nil
}

// Get returns the pass with runID
func (s *Store) Get(ctx context.Context, runID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, source, failure, summary_json FROM passes WHERE run_id = ?", runID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// Prune deletes all but the newest keep passes and returns how many were
// removed
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM passes WHERE id NOT IN (
            SELECT id FROM passes ORDER BY started_at DESC, id DESC LIMIT ?
        )`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune passes: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry   Entry
		failure sql.NullString
		data    string
	)
	if err := row.Scan(&entry.ID, &entry.Source, &failure, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, err
		}
		return entry, fmt.Errorf("scan pass: %w", err)
	}
	entry.Failure = failure.String

	entry.Summary = &engine.Summary{}
	if err := json.Unmarshal([]byte(data), entry.Summary); err != nil {
		return entry, fmt.Errorf("decode summary %d: %w", entry.ID, err)
	}
	return entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
