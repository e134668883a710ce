// Package migrations applies the SQLite schema with golang-migrate.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// RunMigrations applies any pending schema migrations from migrationsPath.
// A database that is already current is not an error.
func RunMigrations(db *sql.DB, migrationsPath string, logger zerolog.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("open migration source %q: %w", migrationsPath, err)
	}

	logger.Info().Str("path", migrationsPath).Msg("Applying schema migrations")
	switch err := m.Up(); {
	case err == nil:
		logger.Info().Msg("Schema migrations applied")
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info().Msg("Schema already current")
	default:
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
