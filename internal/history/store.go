// Package history persists download outcomes in SQLite so finished and
// failed downloads survive restarts. Only item creation and terminal
// transitions are recorded; live progress stays in memory.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/openshelf/openshelf/internal/download"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Entry is one recorded download.
type Entry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Destination string     `json:"destination"`
	State       string     `json:"state"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Store is the SQLite-backed download history.
type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// NewStore opens (creating if needed) the history database at path and runs
// pending migrations.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		conn:   conn,
		logger: logger.With().Str("component", "history").Logger(),
	}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(s.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Created records a new download item. Implements download.Recorder.
func (s *Store) Created(ctx context.Context, item download.Item) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO downloads (id, title, destination, state, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Destination, string(item.State), item.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert download record: %w", err)
	}
	return nil
}

// Finished records a terminal transition. Implements download.Recorder.
func (s *Store) Finished(ctx context.Context, id string, state download.State, errMsg string) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE downloads SET state = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(state), errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update download record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no download record with id %s", id)
	}
	return nil
}

// List returns recorded downloads, newest first, capped at limit (0 means
// a default of 100).
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, destination, state, COALESCE(error, ''), started_at, finished_at
		FROM downloads
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var finished sql.NullTime
		if err := rows.Scan(&e.ID, &e.Title, &e.Destination, &e.State, &e.Error, &e.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan download row: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			e.FinishedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge removes entries older than the cutoff and returns how many were
// deleted.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.conn.ExecContext(ctx, `DELETE FROM downloads WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge downloads: %w", err)
	}
	return res.RowsAffected()
}
