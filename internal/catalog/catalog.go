// Package catalog keeps a SQLite history of recording sessions.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 1

// Entry is one finished session.
type Entry struct {
	ID              string
	MEAID           int
	Path            string
	DurationSeconds int
	ChunkCount      int
	ChunksWritten   int
	State           string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Catalog is a session history stored in a SQLite file.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Catalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	mea_id           INTEGER NOT NULL,
	path             TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL,
	chunk_count      INTEGER NOT NULL,
	chunks_written   INTEGER NOT NULL,
	state            TEXT NOT NULL,
	error            TEXT,
	started_at       INTEGER NOT NULL,
	finished_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_path ON sessions(path);
`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	_, err := c.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
		"schema_version", fmt.Sprintf("%d", schemaVersion))
	return err
}

// Path returns the database file.
func (c *Catalog) Path() string {
	return c.path
}

// Record stores e, replacing any entry with the same id.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := c.db.ExecContext(ctx, `
INSERT OR REPLACE INTO sessions
	(id, mea_id, path, duration_seconds, chunk_count, chunks_written, state, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MEAID, e.Path, e.DurationSeconds, e.ChunkCount, e.ChunksWritten,
		e.State, nullString(e.Error), e.StartedAt.UnixNano(), e.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert session %s: %w", e.ID, err)
	}
	return nil
}

// List returns the most recent sessions first. A limit of zero or less
// returns every session.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, mea_id, path, duration_seconds, chunk_count, chunks_written, state, error, started_at, finished_at
FROM sessions ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.MEAID, &e.Path, &e.DurationSeconds, &e.ChunkCount,
			&e.ChunksWritten, &e.State, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.Error = errText.String
		e.StartedAt = time.Unix(0, started)
		e.FinishedAt = time.Unix(0, finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
