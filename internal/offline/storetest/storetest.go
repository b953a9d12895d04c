// Package storetest provides a conformance suite for offline.Store implementations.
package storetest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/creek-soundboard/internal/offline"
)

// Run exercises every Store method against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) offline.Store) {
	t.Helper()

	v1 := offline.BucketID{Name: "creek-soundboard", Version: 1}
	v2 := offline.BucketID{Name: "creek-soundboard", Version: 2}
	entry := &offline.Entry{
		Method:     http.MethodGet,
		URL:        "http://example.com/a.mp3",
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"audio/mpeg"}},
		Body:       []byte("AAAA"),
		StoredAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	key := "GET http://example.com/a.mp3"

	t.Run("match miss", func(t *testing.T) {
		s := newStore(t)
		b, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		require.Equal(t, v1, b.ID())

		_, err = b.Match(context.Background(), key)
		require.ErrorIs(t, err, offline.ErrCacheMiss)
	})

	t.Run("put then match", func(t *testing.T) {
		s := newStore(t)
		b, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		require.NoError(t, b.Put(context.Background(), key, entry))
		require.NoError(t, b.Put(context.Background(), key, entry), "put is idempotent")

		got, err := b.Match(context.Background(), key)
		require.NoError(t, err)
		require.Equal(t, entry.URL, got.URL)
		require.Equal(t, entry.StatusCode, got.StatusCode)
		require.Equal(t, entry.Body, got.Body)
		require.Equal(t, "audio/mpeg", got.Header.Get("Content-Type"))
		require.True(t, entry.StoredAt.Equal(got.StoredAt))

		keys, err := b.Keys(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{key}, keys)
	})

	t.Run("buckets are isolated", func(t *testing.T) {
		s := newStore(t)
		b1, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		b2, err := s.Open(context.Background(), v2)
		require.NoError(t, err)
		require.NoError(t, b1.Put(context.Background(), key, entry))

		_, err = b2.Match(context.Background(), key)
		require.ErrorIs(t, err, offline.ErrCacheMiss)

		ids, err := s.Buckets(context.Background())
		require.NoError(t, err)
		require.ElementsMatch(t, []offline.BucketID{v1, v2}, ids)
	})

	t.Run("reopen sees entries", func(t *testing.T) {
		s := newStore(t)
		b, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		require.NoError(t, b.Put(context.Background(), key, entry))

		again, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		_, err = again.Match(context.Background(), key)
		require.NoError(t, err)
	})

	t.Run("active marker", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Active(context.Background())
		require.NoError(t, err)
		require.False(t, ok)

		_, err = s.Open(context.Background(), v2)
		require.NoError(t, err)
		require.NoError(t, s.SetActive(context.Background(), v2))
		got, ok, err := s.Active(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v2, got)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		b, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		require.NoError(t, b.Put(context.Background(), key, entry))
		require.NoError(t, s.SetActive(context.Background(), v1))

		existed, err := s.Delete(context.Background(), v1)
		require.NoError(t, err)
		require.True(t, existed)

		existed, err = s.Delete(context.Background(), v1)
		require.NoError(t, err)
		require.False(t, existed)

		ids, err := s.Buckets(context.Background())
		require.NoError(t, err)
		require.Empty(t, ids)

		_, ok, err := s.Active(context.Background())
		require.NoError(t, err)
		require.False(t, ok, "deleting the active bucket clears the marker")

		reopened, err := s.Open(context.Background(), v1)
		require.NoError(t, err)
		_, err = reopened.Match(context.Background(), key)
		require.ErrorIs(t, err, offline.ErrCacheMiss)
	})
}
