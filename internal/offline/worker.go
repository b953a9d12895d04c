package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/log"
)

var tracer = otel.Tracer("github.com/zjrosen/creek-soundboard/internal/offline")

// Config configures a Worker.
type Config struct {
	Bucket BucketID
	// Origin is the base URL shell paths and catalog URIs resolve against.
	Origin *url.URL
	// Shell lists the static assets that must all be cached for install to succeed.
	Shell []string
	// CatalogPath is fetched at install to find media to pre-cache.
	CatalogPath string
	// Network reaches the origin. Defaults to http.DefaultTransport.
	Network http.RoundTripper
	Store   Store
	// MediaConcurrency bounds parallel media fetches at install. Defaults to 4.
	MediaConcurrency int
}

// InstallReport summarizes an install.
type InstallReport struct {
	Bucket      BucketID
	Skipped     bool // the bucket was already active
	ShellCached int
	MediaCached int
	MediaFailed int
	MediaErr    error // catalog fetch or parse failure, if any
}

// Worker is an offline-first http.RoundTripper.
type Worker struct {
	cfg Config

	mu     sync.RWMutex
	active Bucket

	hits   atomic.Int64
	misses atomic.Int64
}

// NewWorker creates a Worker. It serves straight from the network until
// Start or Activate gives it a bucket.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, errors.New("offline: store is required")
	}
	if cfg.Origin == nil {
		return nil, errors.New("offline: origin is required")
	}
	if cfg.Network == nil {
		cfg.Network = http.DefaultTransport
	}
	if cfg.MediaConcurrency < 1 {
		cfg.MediaConcurrency = 4
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "/sounds.json"
	}
	return &Worker{cfg: cfg}, nil
}

// Bucket returns the bucket id this worker installs.
func (w *Worker) Bucket() BucketID { return w.cfg.Bucket }

// Resolve turns a site path into an absolute URL on the origin.
func (w *Worker) Resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return w.cfg.Origin.ResolveReference(r).String(), nil
}

// Start installs and activates the worker's bucket unless it is already active.
// If install fails, the previously active bucket keeps serving and the error
// is returned.
func (w *Worker) Start(ctx context.Context) (InstallReport, error) {
	current, ok, err := w.cfg.Store.Active(ctx)
	if err != nil {
		return InstallReport{Bucket: w.cfg.Bucket}, fmt.Errorf("reading active bucket: %w", err)
	}

	if ok {
		if err := w.claim(ctx, current); err != nil {
			return InstallReport{Bucket: w.cfg.Bucket}, err
		}
		if current == w.cfg.Bucket {
			log.Debug(log.CatCache, "Bucket already active", "bucket", current)
			return InstallReport{Bucket: w.cfg.Bucket, Skipped: true}, nil
		}
	}

	report, err := w.Install(ctx)
	if err != nil {
		return report, err
	}
	return report, w.Activate(ctx)
}

// Install caches the shell and then, best effort, the catalog's media.
func (w *Worker) Install(ctx context.Context) (InstallReport, error) {
	ctx, span := tracer.Start(ctx, "offline.Install")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", w.cfg.Bucket.String()))

	report := InstallReport{Bucket: w.cfg.Bucket}

	bucket, err := w.cfg.Store.Open(ctx, w.cfg.Bucket)
	if err != nil {
		return report, &InstallError{Bucket: w.cfg.Bucket, Err: err}
	}
	log.Info(log.CatCache, "Opened cache", "bucket", w.cfg.Bucket)

	if err := w.installShell(ctx, bucket); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "shell install failed")
		w.discard(ctx)
		log.ErrorErr(log.CatCache, "Cache installation failed", err, "bucket", w.cfg.Bucket)
		return report, err
	}
	report.ShellCached = len(w.cfg.Shell)
	log.Info(log.CatCache, "Static assets cached", "count", report.ShellCached)

	cached, failed, err := w.installMedia(ctx, bucket)
	report.MediaCached, report.MediaFailed, report.MediaErr = cached, failed, err
	if err != nil {
		log.ErrorErr(log.CatCache, "Failed to cache audio files", err)
	} else {
		log.Info(log.CatCache, "Cached audio/icon files for offline use", "cached", cached, "failed", failed)
	}
	span.SetAttributes(
		attribute.Int("shell.cached", report.ShellCached),
		attribute.Int("media.cached", report.MediaCached),
		attribute.Int("media.failed", report.MediaFailed),
	)
	return report, nil
}

// installShell fetches every shell asset before storing any of them.
func (w *Worker) installShell(ctx context.Context, bucket Bucket) error {
	type pending struct {
		key   string
		entry *Entry
	}
	entries := make([]pending, 0, len(w.cfg.Shell))
	for _, p := range w.cfg.Shell {
		target, err := w.Resolve(p)
		if err != nil {
			return &InstallError{Bucket: w.cfg.Bucket, URL: p, Err: err}
		}
		key, entry, err := w.fetch(ctx, target)
		if err != nil {
			return &InstallError{Bucket: w.cfg.Bucket, URL: target, Err: err}
		}
		entries = append(entries, pending{key: key, entry: entry})
	}
	for _, p := range entries {
		if err := bucket.Put(ctx, p.key, p.entry); err != nil {
			return &InstallError{Bucket: w.cfg.Bucket, URL: p.entry.URL, Err: err}
		}
	}
	return nil
}

// installMedia caches catalog media and returns how many were cached and failed.
func (w *Worker) installMedia(ctx context.Context, bucket Bucket) (int, int, error) {
	catalogURL, err := w.Resolve(w.cfg.CatalogPath)
	if err != nil {
		return 0, 0, err
	}
	_, entry, err := w.fetch(ctx, catalogURL)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching catalog: %w", err)
	}
	c, err := catalog.Parse(entry.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing catalog: %w", err)
	}

	urls := catalog.PrecacheURLs(c)
	var cached, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.cfg.MediaConcurrency)
	for _, ref := range urls {
		g.Go(func() error {
			target, err := w.Resolve(ref)
			if err == nil {
				var key string
				var e *Entry
				key, e, err = w.fetch(ctx, target)
				if err == nil {
					err = bucket.Put(ctx, key, e)
				}
			}
			if err != nil {
				failed.Add(1)
				log.Warn(log.CatCache, "Failed to cache media", "url", ref, "error", err)
				return nil
			}
			cached.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(cached.Load()), int(failed.Load()), nil
}

// discard removes a partially installed bucket unless it is the one serving.
func (w *Worker) discard(ctx context.Context) {
	if current, ok, err := w.cfg.Store.Active(ctx); err == nil && ok && current == w.cfg.Bucket {
		return
	}
	if _, err := w.cfg.Store.Delete(ctx, w.cfg.Bucket); err != nil {
		log.ErrorErr(log.CatCache, "Failed to discard bucket", err, "bucket", w.cfg.Bucket)
	}
}

// fetch GETs target from the network and returns it as an entry.
func (w *Worker) fetch(ctx context.Context, target string) (string, *Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := w.cfg.Network.RoundTrip(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, &StatusError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading body: %w", err)
	}
	return KeyFor(req), newEntry(req, resp, body), nil
}

// Activate deletes every stale bucket and starts serving from the worker's bucket.
func (w *Worker) Activate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "offline.Activate")
	defer span.End()

	ids, err := w.cfg.Store.Buckets(ctx)
	if err != nil {
		return fmt.Errorf("listing buckets: %w", err)
	}
	for _, id := range ids {
		if !IsStale(id, w.cfg.Bucket) {
			continue
		}
		log.Info(log.CatCache, "Deleting old cache", "bucket", id)
		if _, err := w.cfg.Store.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting bucket %s: %w", id, err)
		}
	}

	if err := w.cfg.Store.SetActive(ctx, w.cfg.Bucket); err != nil {
		return fmt.Errorf("activating bucket %s: %w", w.cfg.Bucket, err)
	}
	return w.claim(ctx, w.cfg.Bucket)
}

// claim makes id the bucket RoundTrip serves from.
func (w *Worker) claim(ctx context.Context, id BucketID) error {
	bucket, err := w.cfg.Store.Open(ctx, id)
	if err != nil {
		return fmt.Errorf("opening bucket %s: %w", id, err)
	}
	w.mu.Lock()
	w.active = bucket
	w.mu.Unlock()
	log.Debug(log.CatCache, "Serving from bucket", "bucket", id)
	return nil
}

// ActiveBucket returns the bucket currently serving requests.
func (w *Worker) ActiveBucket() (Bucket, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active, w.active != nil
}

// Stats returns the number of cache hits and misses served so far.
func (w *Worker) Stats() (hits, misses int64) {
	return w.hits.Load(), w.misses.Load()
}

// RoundTrip implements http.RoundTripper.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	bucket, ok := w.ActiveBucket()
	if !ok || req.Method != http.MethodGet {
		resp, err := w.cfg.Network.RoundTrip(req)
		if err != nil {
			return nil, &FetchError{URL: req.URL.String(), Err: err}
		}
		return resp, nil
	}

	ctx, span := tracer.Start(req.Context(), "offline.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url", req.URL.String())))
	defer span.End()

	key := KeyFor(req)
	entry, err := bucket.Match(ctx, key)
	if err == nil {
		w.hits.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry.Response(req), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn(log.CatCache, "Cache lookup failed", "key", key, "error", err)
	}
	w.misses.Add(1)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	resp, err := w.cfg.Network.RoundTrip(req.Clone(ctx))
	if err != nil {
		log.Error(log.CatCache, "Fetch failed", "url", req.URL.String(), "error", err)
		span.RecordError(err)
		return nil, &FetchError{URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode != http.StatusOK || !w.sameOrigin(req.URL) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Err: fmt.Errorf("reading body: %w", err)}
	}
	if err := bucket.Put(ctx, key, newEntry(req, resp, body)); err != nil {
		log.ErrorErr(log.CatCache, "Failed to cache response", err, "url", req.URL.String())
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func (w *Worker) sameOrigin(u *url.URL) bool {
	return u.Scheme == w.cfg.Origin.Scheme && u.Host == w.cfg.Origin.Host
}
