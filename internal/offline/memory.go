package offline

import (
	"context"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is a Store that lives for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[BucketID]*memoryBucket
	active  *BucketID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[BucketID]*memoryBucket)}
}

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context, id BucketID) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		b = &memoryBucket{id: id, entries: cache.New(cache.NoExpiration, 0)}
		s.buckets[id] = b
	}
	return b, nil
}

// Buckets implements Store.
func (s *MemoryStore) Buckets(_ context.Context) ([]BucketID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]BucketID, 0, len(s.buckets))
	for id := range s.buckets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id BucketID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return false, nil
	}
	b.entries.Flush()
	delete(s.buckets, id)
	if s.active != nil && *s.active == id {
		s.active = nil
	}
	return true, nil
}

// Active implements Store.
func (s *MemoryStore) Active(_ context.Context) (BucketID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return BucketID{}, false, nil
	}
	return *s.active, true, nil
}

// SetActive implements Store.
func (s *MemoryStore) SetActive(_ context.Context, id BucketID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &id
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

type memoryBucket struct {
	id      BucketID
	entries *cache.Cache
}

func (b *memoryBucket) ID() BucketID { return b.id }

func (b *memoryBucket) Match(_ context.Context, key string) (*Entry, error) {
	v, ok := b.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v.(*Entry), nil
}

func (b *memoryBucket) Put(_ context.Context, key string, e *Entry) error {
	b.entries.Set(key, e, cache.NoExpiration)
	return nil
}

func (b *memoryBucket) Keys(_ context.Context) ([]string, error) {
	items := b.entries.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
