package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// BucketID names one versioned cache bucket.
type BucketID struct {
	Name    string
	Version uint
}

// String renders the id as "<name>-v<version>".
func (b BucketID) String() string {
	return fmt.Sprintf("%s-v%d", b.Name, b.Version)
}

// ParseBucketID parses the String form of a BucketID.
func ParseBucketID(s string) (BucketID, error) {
	i := strings.LastIndex(s, "-v")
	if i <= 0 {
		return BucketID{}, fmt.Errorf("bucket id %q: missing version suffix", s)
	}
	v, err := strconv.ParseUint(s[i+2:], 10, 0)
	if err != nil {
		return BucketID{}, fmt.Errorf("bucket id %q: %w", s, err)
	}
	return BucketID{Name: s[:i], Version: uint(v)}, nil
}

// IsStale reports whether bucket id should be reclaimed when current is active.
func IsStale(id, current BucketID) bool {
	return id != current
}

// Entry is a stored response.
type Entry struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// KeyFor returns the cache key of a request: method and URL, fragment removed.
func KeyFor(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return req.Method + " " + u.String()
}

func newEntry(req *http.Request, resp *http.Response, body []byte) *Entry {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return &Entry{
		Method:     req.Method,
		URL:        u.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now().UTC(),
	}
}

// Response builds a fresh response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Store holds versioned buckets and remembers which one is active.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open returns the bucket with the given id, creating it if needed.
	Open(ctx context.Context, id BucketID) (Bucket, error)
	// Buckets lists every existing bucket.
	Buckets(ctx context.Context) ([]BucketID, error)
	// Delete removes a bucket and its entries. It reports whether the bucket existed.
	// Deleting the active bucket clears the active marker.
	Delete(ctx context.Context, id BucketID) (bool, error)
	// Active returns the bucket RoundTrip should serve from.
	Active(ctx context.Context) (BucketID, bool, error)
	// SetActive records the active bucket.
	SetActive(ctx context.Context, id BucketID) error
	Close() error
}

// Bucket is one named key to response mapping.
type Bucket interface {
	ID() BucketID
	// Match returns ErrCacheMiss when key is absent.
	Match(ctx context.Context, key string) (*Entry, error)
	// Put stores e under key, replacing any previous entry.
	Put(ctx context.Context, key string, e *Entry) error
	Keys(ctx context.Context) ([]string, error)
}
