package sound

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/creek-soundboard/internal/log"
)

// Spool materializes remote media as local files.
type Spool struct {
	client  *http.Client
	resolve func(ref string) (string, error)
	dir     string
	index   *cache.Cache // resolved URL -> local path
	flight  singleflight.Group
}

// NewSpool writes files under dir, fetching refs resolved by resolve.
func NewSpool(client *http.Client, resolve func(string) (string, error), dir string) *Spool {
	return &Spool{
		client:  client,
		resolve: resolve,
		dir:     dir,
		index:   cache.New(cache.NoExpiration, 0),
	}
}

// Path returns a local file holding the media at ref, downloading it on
// first use. Concurrent calls for the same ref share one download.
func (s *Spool) Path(ctx context.Context, ref string) (string, error) {
	target, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if p, ok := s.index.Get(target); ok {
		if _, err := os.Stat(p.(string)); err == nil {
			return p.(string), nil
		}
		s.index.Delete(target)
	}
	v, err, _ := s.flight.Do(target, func() (any, error) {
		return s.download(ctx, target)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Spool) download(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: unexpected status %s", target, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", target, err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("creating spool dir: %w", err)
	}
	dst := filepath.Join(s.dir, spoolName(target))
	if err := atomic.WriteFile(dst, bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("spooling %s: %w", target, err)
	}
	s.index.Set(target, dst, cache.NoExpiration)
	log.Debug(log.CatAudio, "Spooled media", "url", target, "path", dst, "bytes", len(body))
	return dst, nil
}

// spoolName keeps the extension so players can sniff the format.
func spoolName(target string) string {
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:12]) + path.Ext(stripQuery(target))
}

func stripQuery(u string) string {
	for i := 0; i < len(u); i++ {
		if u[i] == '?' || u[i] == '#' {
			return u[:i]
		}
	}
	return u
}
