package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/offline"
)

// BucketStore implements offline.Store on the cache database.
type BucketStore struct {
	db *DB
}

var _ offline.Store = (*BucketStore)(nil)

// Open creates the bucket row if it does not exist.
func (s *BucketStore) Open(ctx context.Context, id offline.BucketID) (offline.Bucket, error) {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO buckets (name, version, created_at) VALUES (?, ?, ?)`,
		id.Name, int64(id.Version), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", id, err)
	}
	return &bucket{db: s.db.conn, id: id}, nil
}

func (s *BucketStore) Buckets(ctx context.Context) (ids []offline.BucketID, err error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT name, version FROM buckets ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	for rows.Next() {
		var (
			name    string
			version int64
		)
		if err := rows.Scan(&name, &version); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		ids = append(ids, offline.BucketID{Name: name, Version: uint(version)})
	}
	return ids, rows.Err()
}

// Delete removes the bucket. Entries and the active marker go with it.
func (s *BucketStore) Delete(ctx context.Context, id offline.BucketID) (bool, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM entries WHERE bucket_name = ? AND bucket_version = ?`,
		`DELETE FROM active_bucket WHERE name = ? AND version = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id.Name, int64(id.Version)); err != nil {
			return false, fmt.Errorf("failed to delete bucket %s: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM buckets WHERE name = ? AND version = ?`, id.Name, int64(id.Version))
	if err != nil {
		return false, fmt.Errorf("failed to delete bucket %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete bucket %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	if n > 0 {
		log.Debug(log.CatDB, "Deleted bucket", "bucket", id.String())
	}
	return n > 0, nil
}

func (s *BucketStore) Active(ctx context.Context) (offline.BucketID, bool, error) {
	var (
		name    string
		version int64
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT name, version FROM active_bucket WHERE slot = 1`).Scan(&name, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return offline.BucketID{}, false, nil
	}
	if err != nil {
		return offline.BucketID{}, false, fmt.Errorf("failed to read active bucket: %w", err)
	}
	return offline.BucketID{Name: name, Version: uint(version)}, true, nil
}

// SetActive fails if the bucket has not been opened.
func (s *BucketStore) SetActive(ctx context.Context, id offline.BucketID) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO active_bucket (slot, name, version) VALUES (1, ?, ?)`,
		id.Name, int64(id.Version))
	if err != nil {
		return fmt.Errorf("failed to activate bucket %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BucketStore) Close() error {
	return s.db.Close()
}

type bucket struct {
	db *sql.DB
	id offline.BucketID
}

func (b *bucket) ID() offline.BucketID { return b.id }

func (b *bucket) Match(ctx context.Context, key string) (*offline.Entry, error) {
	m := EntryModel{BucketName: b.id.Name, BucketVersion: int64(b.id.Version), Key: key}
	err := b.db.QueryRowContext(ctx,
		`SELECT method, url, status, header, body, stored_at
		 FROM entries
		 WHERE bucket_name = ? AND bucket_version = ? AND key = ?`,
		m.BucketName, m.BucketVersion, key,
	).Scan(&m.Method, &m.URL, &m.Status, &m.Header, &m.Body, &m.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, offline.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match %s: %w", key, err)
	}
	return m.toEntry()
}

func (b *bucket) Put(ctx context.Context, key string, e *offline.Entry) error {
	m, err := toEntryModel(b.id, key, e)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (bucket_name, bucket_version, key, method, url, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.BucketName, m.BucketVersion, m.Key, m.Method, m.URL, m.Status, m.Header, m.Body, m.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (b *bucket) Keys(ctx context.Context) (keys []string, err error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM entries WHERE bucket_name = ? AND bucket_version = ? ORDER BY key`,
		b.id.Name, int64(b.id.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
