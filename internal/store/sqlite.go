// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides message/campaign persistence with automatic schema creation

package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"database/sql"
)

// timeLayout is RFC3339 with fixed-width nanoseconds so that string
// comparison in SQL matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db             *sql.DB
	logger         *slog.Logger
	retentionLimit int
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// All appends go through a transaction; a single writer connection keeps
	// the read-modify-write cycle of append+trim serialized.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:             db,
		logger:         logger,
		retentionLimit: DefaultRetentionLimit,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// SetRetentionLimit overrides the global message retention bound.
// Values below 1 are ignored.
func (s *SQLiteStore) SetRetentionLimit(n int) {
	if n >= 1 {
		s.retentionLimit = n
	}
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			phone_number TEXT NOT NULL,
			body TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			origin_backend TEXT NOT NULL DEFAULT '',
			backend_ref TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_messages_phone_ts
			ON messages(phone_number, timestamp);

		CREATE INDEX IF NOT EXISTS idx_messages_ts
			ON messages(timestamp);

		CREATE TABLE IF NOT EXISTS campaigns (
			campaign_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			total_recipients INTEGER NOT NULL,
			successful INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			message_template TEXT NOT NULL DEFAULT '',
			details_json TEXT NOT NULL DEFAULT '[]',
			estimated_cost TEXT NOT NULL DEFAULT '0.00',
			actual_cost TEXT NOT NULL DEFAULT '0.00',
			start_time TEXT NOT NULL,
			end_time TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_campaigns_start
			ON campaigns(start_time);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
