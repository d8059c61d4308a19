package storage

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigratePostgreSQL applies the embedded schema migrations to the database.
// Safe to call on every startup; an up-to-date schema is not an error.
func MigratePostgreSQL(db *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return apperrors.Wrap(err, "failed to load migrations")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return apperrors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return apperrors.Wrap(err, "failed to create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperrors.Wrap(err, "failed to run migrations")
	}
	return nil
}
