package offline

import (
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by Bucket.Match when no entry exists for a key.
var ErrCacheMiss = errors.New("cache miss")

// InstallError indicates the shell could not be cached. The new bucket
// version is not activated.
type InstallError struct {
	Bucket BucketID
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("installing %s: %v", e.Bucket, e.Err)
	}
	return fmt.Sprintf("installing %s: caching %s: %v", e.Bucket, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstallError) Unwrap() error { return e.Err }

// FetchError indicates a request missed the cache and the network failed.
type FetchError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error { return e.Err }

// StatusError indicates a non-success response while installing.
type StatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
