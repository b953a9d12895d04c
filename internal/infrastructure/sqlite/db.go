// Package sqlite persists offline cache buckets in a SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/zjrosen/creek-soundboard/internal/infrastructure/migrations"
	"github.com/zjrosen/creek-soundboard/internal/log"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(wal)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// DB owns the connection to the cache database.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens the database at path, creating its directory, and migrates it.
// An existing file is first copied to {path}.bak.
func NewDB(path string) (*DB, error) {
	log.Debug(log.CatDB, "Opening cache database", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.ErrorErr(log.CatDB, "Failed to create database directory", err, "path", dir)
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); err == nil {
		backup := path + ".bak"
		if err := copyFile(path, backup); err != nil {
			log.ErrorErr(log.CatDB, "Failed to back up database", err, "path", path, "backup", backup)
			return nil, fmt.Errorf("failed to create pre-migration backup: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		log.ErrorErr(log.CatDB, "Failed to ping database", err, "path", path)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Apply(conn); err != nil {
		_ = conn.Close()
		log.ErrorErr(log.CatDB, "Failed to run migrations", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info(log.CatDB, "Cache database ready", "path", path)
	return &DB{conn: conn, path: path}, nil
}

func dsn(path string) string {
	q := url.Values{"_pragma": pragmas}
	return "file:" + path + "?" + q.Encode()
}

// Close releases the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	log.Debug(log.CatDB, "Closing cache database", "path", db.path)
	return db.conn.Close()
}

// BucketStore returns the offline.Store view of this database.
func (db *DB) BucketStore() *BucketStore {
	return &BucketStore{db: db}
}

func copyFile(src, dst string) (retErr error) {
	in, err := os.Open(src) //nolint:gosec // G304: database path from config
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close source file: %w", err)
		}
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, info.Mode()) //nolint:gosec // G304: derived from database path
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close backup file: %w", err)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
