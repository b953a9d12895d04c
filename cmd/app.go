package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zjrosen/creek-soundboard/internal/config"
	"github.com/zjrosen/creek-soundboard/internal/frontend"
	"github.com/zjrosen/creek-soundboard/internal/infrastructure/redisstore"
	"github.com/zjrosen/creek-soundboard/internal/infrastructure/sqlite"
	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/offline"
	"github.com/zjrosen/creek-soundboard/internal/playback"
	"github.com/zjrosen/creek-soundboard/internal/sound"
)

// app holds the collaborators every command shares: the bucket store, the
// offline worker and the HTTP client that goes through it.
type app struct {
	cfg        config.Config
	store      offline.Store
	worker     *offline.Worker
	client     *http.Client
	catalogURL string
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	origin, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	store, err := openStore(ctx, c.Cache)
	if err != nil {
		return nil, err
	}

	base, network := frontend.NewOriginTransport(origin, http.DefaultTransport)
	worker, err := offline.NewWorker(offline.Config{
		Bucket:           bucketID(c),
		Origin:           base,
		Shell:            c.Cache.Shell,
		CatalogPath:      c.CatalogPath,
		Network:          network,
		Store:            store,
		MediaConcurrency: c.Cache.MediaConcurrency,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	catalogURL, err := worker.Resolve(c.CatalogPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("catalog_path: %w", err)
	}

	return &app{
		cfg:        c,
		store:      store,
		worker:     worker,
		client:     &http.Client{Transport: worker, Timeout: c.HTTPTimeout},
		catalogURL: catalogURL,
	}, nil
}

func bucketID(c config.Config) offline.BucketID {
	return offline.BucketID{Name: config.AppName, Version: c.Cache.Version}
}

// openStore opens the bucket store selected by cache.backend.
func openStore(ctx context.Context, c config.CacheConfig) (offline.Store, error) {
	switch c.Backend {
	case "memory":
		return offline.NewMemoryStore(), nil
	case "redis":
		return redisstore.Dial(ctx, c.RedisAddr, c.RedisPrefix)
	case "sqlite":
		db, err := sqlite.NewDB(c.Path)
		if err != nil {
			return nil, err
		}
		return db.BucketStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

// start installs and activates the offline cache. Failures are logged; the
// worker keeps serving the previous bucket or the network.
func (a *app) start(ctx context.Context) {
	report, err := a.worker.Start(ctx)
	if err != nil {
		log.ErrorErr(log.CatCache, "Offline cache install failed", err, "bucket", report.Bucket)
		return
	}
	if report.Skipped {
		return
	}
	log.Info(log.CatCache, "Offline cache ready", "bucket", report.Bucket,
		"shell", report.ShellCached, "media", report.MediaCached, "media_failed", report.MediaFailed)
}

// newController builds a playback controller on the OS audio player.
func (a *app) newController(hooks playback.Hooks, reporter playback.Reporter) (*playback.Controller, error) {
	backend, err := a.newBackend()
	if err != nil {
		return nil, err
	}
	return playback.New(backend, hooks,
		playback.WithReporter(reporter),
		playback.WithPreloadConcurrency(a.cfg.Audio.PreloadConcurrency),
	), nil
}

func (a *app) newBackend() (*sound.Backend, error) {
	player, err := sound.DetectPlayer(a.cfg.Audio.Player)
	if err != nil {
		return nil, fmt.Errorf("%w; install ffplay or set audio.player", err)
	}
	log.Debug(log.CatAudio, "Using audio player", "player", player.Path)
	spool := sound.NewSpool(a.client, a.worker.Resolve, a.cfg.Audio.SpoolDir)
	return sound.NewBackend(player, spool), nil
}

func (a *app) Close() error {
	return a.store.Close()
}
