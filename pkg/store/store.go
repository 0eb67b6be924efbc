package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/log"
)

// Sentinel errors returned by store operations. Callers match them with
// errors.Is; the wrapped message carries the specifics.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists means an insert collided with a unique constraint.
	ErrAlreadyExists = errors.New("already exists")
	// ErrPoolExhausted means no available pool entry satisfies a draw.
	ErrPoolExhausted = errors.New("hostname pool exhausted")
	// ErrInsufficientPool means a batch asks for more hostnames than the
	// venue has available.
	ErrInsufficientPool = errors.New("insufficient available hostnames")
	// ErrBatchState means a batch transition is not legal from the
	// batch's current status.
	ErrBatchState = errors.New("invalid batch state")
	// ErrBatchDepleted means an active batch has no remaining slots.
	ErrBatchDepleted = errors.New("batch has no remaining deployments")
)

// maxBusyRetries bounds how many times a transaction is retried when
// SQLite reports the database busy or locked.
const maxBusyRetries = 3

// Store provides typed access to the provisioning database. A single
// SQLite connection backs all operations, so every call is serialized
// and multi-statement operations run as real transactions.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// configures it for single-writer use with WAL journaling. The schema is
// not touched; call Migrate to bring it up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time. Funneling every connection
	// request through a single handle keeps writers from tripping over
	// each other and makes SELECT-then-UPDATE sequences race free.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: log.WithComponent("store"),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem location of the database file.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// SizeMB reports the size of the database file in megabytes, rounded to
// two decimal places.
func (s *Store) SizeMB() (float64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	mb := float64(info.Size()) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100, nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error. Busy and locked errors are retried a bounded number of
// times with a short backoff.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runTx(fn)
		if err == nil || !isBusy(err) || attempt >= maxBusyRetries {
			return err
		}
		delay := time.Duration(attempt+1) * 50 * time.Millisecond
		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Database busy, retrying transaction")
		time.Sleep(delay)
	}
}

func (s *Store) runTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so query helpers can
// run standalone or inside a transaction.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isBusy reports whether err is a transient SQLite busy or locked error.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nullableString converts an empty string to a NULL-storing value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// timePtr converts a scanned NullTime to the pointer form used by the
// wire types.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
