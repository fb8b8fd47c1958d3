// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema and applies idempotent migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		// applied to every pooled connection, not just the first
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		-- Private area sessions (cookie-based)
		CREATE TABLE IF NOT EXISTS private_sessions (
			id           TEXT PRIMARY KEY,
			session_hash TEXT NOT NULL UNIQUE,
			email        TEXT NOT NULL,
			role         TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			expires_at   TEXT NOT NULL,
			revoked_at   TEXT,
			last_seen_at TEXT,
			ip           TEXT,
			user_agent   TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_private_sessions_email ON private_sessions(email);
		CREATE INDEX IF NOT EXISTS idx_private_sessions_expires ON private_sessions(expires_at);

		-- Known private-area identities
		CREATE TABLE IF NOT EXISTS private_users (
			email      TEXT PRIMARY KEY,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		-- Single-use sign-in links
		CREATE TABLE IF NOT EXISTS magic_links (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL,
			next_path  TEXT,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			used_at    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_magic_links_email ON magic_links(email);

		CREATE TABLE IF NOT EXISTS private_audit_log (
			id         TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			email      TEXT,
			ip         TEXT,
			user_agent TEXT,
			meta_json  TEXT,
			ts         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_private_audit_ts ON private_audit_log(ts DESC);

		CREATE TABLE IF NOT EXISTS private_access_requests (
			id              TEXT PRIMARY KEY,
			request_type    TEXT NOT NULL,
			profile_id      TEXT,
			requester_email TEXT NOT NULL,
			requester_org   TEXT,
			message         TEXT,
			status          TEXT NOT NULL,
			reviewed_by     TEXT,
			reviewed_at     TEXT,
			created_at      TEXT NOT NULL,

			CHECK (request_type IN ('profile', 'bp', 'portability')),
			CHECK (status IN ('pending', 'approved', 'rejected'))
		);

		CREATE INDEX IF NOT EXISTS idx_access_requests_created ON private_access_requests(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_access_requests_email ON private_access_requests(requester_email);

		CREATE TABLE IF NOT EXISTS jobs (
			slug        TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			summary     TEXT,
			description TEXT,
			location    TEXT,
			market      TEXT,
			seniority   TEXT,
			active      INTEGER NOT NULL DEFAULT 1,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_active ON jobs(active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		table  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('private_sessions') WHERE name = 'via'`,
			apply:  `ALTER TABLE private_sessions ADD COLUMN via TEXT`,
			table:  "private_sessions",
			column: "via",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('private_access_requests') WHERE name = 'reason'`,
			apply:  `ALTER TABLE private_access_requests ADD COLUMN reason TEXT`,
			table:  "private_access_requests",
			column: "reason",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullTime converts an optional timestamp into a nullable column value.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseNullTime converts a nullable column value into an optional timestamp.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
