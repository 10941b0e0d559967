package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - WITHOUT ROWID documents table with seq index
const currentSchemaVersion = 1

// Store provides durable storage for record documents.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db       *sql.DB
	clock    *Clock
	notifier *notifier
	ids      IDGenerator
}

// Option configures a Store at open time.
type Option func(*Store)

// WithIDGenerator overrides the generator used for store-assigned
// document identifiers. Tests use FixedIDs for deterministic keys.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - BEGIN IMMEDIATE transactions (write lock taken at BEGIN)
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	// _txlock=immediate makes every transaction a write transaction from
	// BEGIN, which is what the retry loop in RunInTransaction relies on.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate", url.PathEscape(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool for SQLite
	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1) // Keep one connection ready

	// Apply required pragmas
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	// Apply schema migrations
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	// Resume the change clock from the highest committed sequence so
	// feed ordering survives reopen.
	var maxSeq sql.NullInt64
	if err := db.QueryRow("SELECT MAX(seq) FROM documents").Scan(&maxSeq); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read change clock: %w", err)
	}

	s := &Store{
		db:       db,
		clock:    NewClockAt(maxSeq.Int64),
		notifier: newNotifier(),
		ids:      UUIDv7IDs{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection and detaches every subscription.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.notifier.closeAll()
	return s.db.Close()
}

// NewID returns a fresh store-assigned document identifier.
func (s *Store) NewID() string {
	return s.ids.NewID()
}

// Clock returns the store's change clock.
// Used by tests to observe sequence positions.
func (s *Store) Clock() *Clock {
	return s.clock
}

// IsContention reports whether an error is SQLite write contention
// (SQLITE_BUSY or SQLITE_LOCKED), the only error class the transaction
// runner retries.
func IsContention(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
