// Package migrations embeds the schema for every supported dialect and
// applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/bryanwahyu/evidence-custody/internal/infra/db/sqlstore"
)

//go:embed sqlite/*.sql mysql/*.sql postgres/*.sql
var migrationFiles embed.FS

func newMigrator(db *sql.DB, dialect sqlstore.Dialect) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		err    error
	)
	switch dialect {
	case sqlstore.SQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case sqlstore.MySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case sqlstore.Postgres:
		driver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationFiles, string(dialect))
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", source, string(dialect), driver)
}

// Up applies all pending migrations. The migrator is not closed: closing
// the driver would close db, which the caller still owns.
func Up(db *sql.DB, dialect sqlstore.Dialect, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	m, err := newMigrator(db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no pending migrations", "dialect", dialect)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Info("migrations completed successfully", "dialect", dialect, "version", version)
	return nil
}

// Version returns the applied schema version.
func Version(db *sql.DB, dialect sqlstore.Dialect) (uint, bool, error) {
	m, err := newMigrator(db, dialect)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m.Version()
}
