// Package history persists an append-only audit of executed console
// commands in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	output      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commands_started_at ON commands(started_at DESC);
`

// Entry is one executed command with its resolved output.
type Entry struct {
	ID        string
	Command   string
	Output    string
	StartedAt time.Time
	Duration  time.Duration
}

// Store records and queries command history.
type Store struct {
	log *slog.Logger
	db  *sql.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(log *slog.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &Store{
		log: log.With("component", "history_store"),
		db:  db,
	}, nil
}

// Record appends one executed command to the audit log.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commands (id, command, output, started_at, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Command, e.Output, e.StartedAt.UTC(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}

	s.log.Debug("Command recorded", "command_id", e.ID, "duration", e.Duration)

	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, output, started_at, duration_ms FROM commands ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}

	for rows.Next() {
		var (
			e  Entry
			ms int64
		)

		if err := rows.Scan(&e.ID, &e.Command, &e.Output, &e.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
