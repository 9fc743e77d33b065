package scrobbler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Queue is a persistent backlog of plays waiting to be submitted, backed by
// SQLite. Plays stay queued across daemon restarts until Last.fm takes them
// or they age past MaxAge.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// Entry is a queued play
type Entry struct {
	ID int64
	Scrobble
	Submitted bool
	Attempts  int
	Error     string
}

// NewQueue opens the queue database at dbPath, creating it if needed.
func NewQueue(dbPath string) (*Queue, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS scrobbles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			played INTEGER NOT NULL,
			submitted BOOLEAN NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_scrobbles_pending ON scrobbles(submitted, started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Queue{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (q *Queue) Close() error {
	return q.db.Close()
}

// Add queues a play and returns its id.
func (q *Queue) Add(ctx context.Context, s Scrobble) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO scrobbles (artist, track, album, started_at, played) VALUES (?, ?, ?, ?, ?)`,
		s.Artist, s.Track, s.Album, s.StartedAt.Unix(), int64(s.Played/time.Second),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scrobble: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// Pending returns unsubmitted plays, oldest first. A limit of zero or less
// returns all of them.
func (q *Queue) Pending(ctx context.Context, limit int) ([]Entry, error) {
	query := selectEntries + ` WHERE submitted = 0 ORDER BY started_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q.query(ctx, query)
}

// All returns every queued play, newest first.
func (q *Queue) All(ctx context.Context) ([]Entry, error) {
	return q.query(ctx, selectEntries+` ORDER BY started_at DESC, id DESC`)
}

// MarkSubmitted records that Last.fm has taken the plays with the given ids.
// A non-empty note is kept as the entry's error, for plays Last.fm ignored.
func (q *Queue) MarkSubmitted(ctx context.Context, note string, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE scrobbles SET submitted = 1, attempts = attempts + 1, error = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, note, id); err != nil {
			return fmt.Errorf("failed to mark scrobble %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkFailed records a failed submission attempt. The play stays pending.
func (q *Queue) MarkFailed(ctx context.Context, errMsg string, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, errMsg)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := q.db.ExecContext(ctx,
		`UPDATE scrobbles SET attempts = attempts + 1, error = ? WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark scrobble error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != int64(len(ids)) {
		return fmt.Errorf("marked %d of %d scrobbles as failed", rows, len(ids))
	}
	return nil
}

// Prune deletes submitted plays older than keep and pending plays too old
// for Last.fm to accept. It returns the number of rows removed.
func (q *Queue) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	now := q.now()
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM scrobbles WHERE (submitted = 1 AND started_at < ?) OR (submitted = 0 AND started_at < ?)`,
		now.Add(-keep).Unix(), now.Add(-MaxAge).Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scrobbles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of queued plays. If includeSubmitted is false,
// only pending plays are counted.
func (q *Queue) Count(ctx context.Context, includeSubmitted bool) (int, error) {
	query := "SELECT COUNT(*) FROM scrobbles"
	if !includeSubmitted {
		query += " WHERE submitted = 0"
	}

	var count int
	if err := q.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}
	return count, nil
}

const selectEntries = `SELECT id, artist, track, album, started_at, played, submitted, attempts, error FROM scrobbles`

func (q *Queue) query(ctx context.Context, query string) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAt, played int64
		if err := rows.Scan(&e.ID, &e.Artist, &e.Track, &e.Album, &startedAt, &played, &e.Submitted, &e.Attempts, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}
		e.StartedAt = time.Unix(startedAt, 0)
		e.Played = time.Duration(played) * time.Second
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrobbles: %w", err)
	}
	return entries, nil
}
