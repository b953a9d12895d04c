// Package migrations holds the schema of the persistent cache database and
// applies it with golang-migrate.
//
// golang-migrate's own sqlite3 driver imports mattn/go-sqlite3, which
// registers under the same "sqlite3" name as ncruces/go-sqlite3. Driver in
// this package speaks to any *sql.DB opened through the ncruces driver instead.
//
//	db, _ := sql.Open("sqlite3", "file:cache.db")
//	err := migrations.Apply(db)
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var schemaFS embed.FS

// FS returns the embedded migration files.
func FS() fs.FS {
	return schemaFS
}

// New builds a migrator over db using the embedded files.
func New(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, ".")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	drv, err := WithInstance(db, &Config{})
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, "sqlite3", drv)
}

// Apply brings db up to the latest schema version. An already current
// database is not an error.
func Apply(db *sql.DB) error {
	m, err := New(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
