package store

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// schemaTables are the tables the initial migration is expected to create.
// Verify checks for their presence so operators can confirm a database is
// usable before pointing servers at it.
var schemaTables = []string{
	"venues",
	"hostname_pool",
	"deployment_history",
	"master_images",
	"deployment_batches",
}

// migrateLogger adapts the migrate library's logger interface onto zerolog.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return true
}

// newMigrator builds a migrate instance over the store's open database
// handle using the embedded migration files.
func (s *Store) newMigrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "paddock", drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = &migrateLogger{logger: log.WithComponent("migrate")}
	return m, nil
}

// Migrate applies any pending schema migrations. It is safe to call on
// every startup; an already current schema is not an error.
func (s *Store) Migrate() error {
	m, err := s.newMigrator()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			s.logger.Debug().Msg("Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	s.logger.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Schema migrations applied")
	return nil
}

// SchemaVersion reports the current migration version. It returns 0 and
// no error when the database has never been migrated.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// Verify confirms that every expected table is present. It returns an
// error naming the missing tables, if any.
func (s *Store) Verify() error {
	var missing []string
	for _, table := range schemaTables {
		var name string
		err := s.db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			missing = append(missing, table)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to inspect schema: %w", err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema verification failed, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Reset drops every table, including migration bookkeeping, and reapplies
// the schema from scratch. All data is lost.
func (s *Store) Reset() error {
	m, err := s.newMigrator()
	if err != nil {
		return err
	}
	if err := m.Drop(); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	s.logger.Warn().Msg("Database schema dropped")
	return s.Migrate()
}
