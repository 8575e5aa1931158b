package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// database/sql driver for the short-lived migration handle
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies pending up-migrations from src/dir against the database at url.
// The pgx pool does not expose a database/sql handle, so this opens its own,
// runs to the latest version, and closes it
func Migrate(url string, src fs.FS, dir string) error {
	source, err := iofs.New(src, dir)
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("store: migration conn: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("store: migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}
