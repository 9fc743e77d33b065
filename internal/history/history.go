// Package history remembers which file each play argument resolved to, so
// short names can be replayed after the original path is gone from the
// command line.
package history

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

// ErrNotFound is returned when an input has never been played.
var ErrNotFound = errors.New("no history for input")

// Store is a SQLite backed play history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Entry is a single recorded play.
type Entry struct {
	Timestamp time.Time
	Input     string
	Path      string
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS history (
			timestamp INTEGER,
			input TEXT,
			path TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_history_timestamp_input ON history(timestamp, input);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert records that input resolved to path.
func (s *Store) Insert(ctx context.Context, input, path string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (timestamp, input, path) VALUES (?, ?, ?)",
		s.now().Unix(), input, path,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// Find returns the most recent path recorded for input.
func (s *Store) Find(ctx context.Context, input string) (string, error) {
	query := `
		SELECT path FROM history
		WHERE input = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT 1
	`

	var path string
	err := s.db.QueryRowContext(ctx, query, input).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, input)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query history: %w", err)
	}
	return path, nil
}

// List returns up to limit entries, newest first. A limit of zero returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT timestamp, input, path FROM history
		ORDER BY timestamp DESC, rowid DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&ts, &e.Input, &e.Path); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}

// Resolve turns a play argument into a canonical file path and records it.
// Existing files are used directly; anything else is looked up by its
// previous resolution.
func (s *Store) Resolve(ctx context.Context, input string) (string, error) {
	path := input
	if _, err := os.Stat(input); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if path, err = s.Find(ctx, input); err != nil {
			return "", err
		}
	}

	canonical, err := canonicalize(path)
	if err != nil {
		return "", err
	}

	if err := s.Insert(ctx, input, canonical); err != nil {
		return "", err
	}
	return canonical, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return resolved, nil
}
