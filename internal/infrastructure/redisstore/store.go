// Package redisstore keeps offline cache buckets in Redis so several
// soundboard processes can share one warm cache.
//
// Keys, relative to the configured prefix:
//
//	buckets          set of bucket ids ("name-vN")
//	bucket:<id>      hash of request key to JSON encoded entry
//	active           string, id of the active bucket
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/offline"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "soundboard:"

// Store implements offline.Store on a Redis server.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ offline.Store = (*Store)(nil)

// New wraps an existing client. An empty prefix means DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr, prefix string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	log.Debug(log.CatCache, "Connected to redis", "addr", addr, "prefix", prefix)
	return New(rdb, prefix), nil
}

func (s *Store) bucketsKey() string { return s.prefix + "buckets" }
func (s *Store) activeKey() string  { return s.prefix + "active" }
func (s *Store) bucketKey(id offline.BucketID) string {
	return s.prefix + "bucket:" + id.String()
}

func (s *Store) Open(ctx context.Context, id offline.BucketID) (offline.Bucket, error) {
	if err := s.rdb.SAdd(ctx, s.bucketsKey(), id.String()).Err(); err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", id, err)
	}
	return &bucket{rdb: s.rdb, id: id, key: s.bucketKey(id)}, nil
}

func (s *Store) Buckets(ctx context.Context) ([]offline.BucketID, error) {
	members, err := s.rdb.SMembers(ctx, s.bucketsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	sort.Strings(members)
	ids := make([]offline.BucketID, 0, len(members))
	for _, m := range members {
		id, err := offline.ParseBucketID(m)
		if err != nil {
			log.Warn(log.CatCache, "Skipping malformed bucket id", "id", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the bucket atomically with respect to the active marker.
func (s *Store) Delete(ctx context.Context, id offline.BucketID) (bool, error) {
	var removed int64
	txf := func(tx *redis.Tx) error {
		active, err := tx.Get(ctx, s.activeKey()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		var srem *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			srem = p.SRem(ctx, s.bucketsKey(), id.String())
			p.Del(ctx, s.bucketKey(id))
			if active == id.String() {
				p.Del(ctx, s.activeKey())
			}
			return nil
		})
		if err != nil {
			return err
		}
		removed = srem.Val()
		return nil
	}
	for range 3 {
		err := s.rdb.Watch(ctx, txf, s.activeKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to delete bucket %s: %w", id, err)
		}
		return removed > 0, nil
	}
	return false, fmt.Errorf("failed to delete bucket %s: %w", id, redis.TxFailedErr)
}

func (s *Store) Active(ctx context.Context) (offline.BucketID, bool, error) {
	raw, err := s.rdb.Get(ctx, s.activeKey()).Result()
	if errors.Is(err, redis.Nil) {
		return offline.BucketID{}, false, nil
	}
	if err != nil {
		return offline.BucketID{}, false, fmt.Errorf("failed to read active bucket: %w", err)
	}
	id, err := offline.ParseBucketID(raw)
	if err != nil {
		return offline.BucketID{}, false, err
	}
	return id, true, nil
}

func (s *Store) SetActive(ctx context.Context, id offline.BucketID) error {
	if err := s.rdb.Set(ctx, s.activeKey(), id.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to activate bucket %s: %w", id, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error { return s.rdb.Close() }

type bucket struct {
	rdb redis.UniversalClient
	id  offline.BucketID
	key string
}

func (b *bucket) ID() offline.BucketID { return b.id }

func (b *bucket) Match(ctx context.Context, key string) (*offline.Entry, error) {
	raw, err := b.rdb.HGet(ctx, b.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, offline.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match %s: %w", key, err)
	}
	var e offline.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s: %w", key, err)
	}
	return &e, nil
}

func (b *bucket) Put(ctx context.Context, key string, e *offline.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", key, err)
	}
	if err := b.rdb.HSet(ctx, b.key, key, raw).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (b *bucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.rdb.HKeys(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
