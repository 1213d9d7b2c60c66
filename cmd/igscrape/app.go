package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/engine"
	"github.com/IshaanNene/igscrape/internal/extract"
	"github.com/IshaanNene/igscrape/internal/fetcher"
	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/scrapers"
	"github.com/IshaanNene/igscrape/internal/storage"
)

// app is everything a scraping run needs, built once from the config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *inspector.Registry
	dispatch *notify.Dispatcher
	runner   *engine.Runner

	closers []func() error
}

// newRegistry registers the built-in scrapers and the configured definitions.
func newRegistry(cfg *config.Config, logger *slog.Logger) (*inspector.Registry, error) {
	reg := inspector.NewRegistry(logger)
	if err := scrapers.Register(reg, cfg.Engine.DefinitionsDir, logger); err != nil {
		return nil, fmt.Errorf("register scrapers: %w", err)
	}
	return reg, nil
}

// newApp wires the fetcher, storage backends, notifiers and runner.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.metrics = observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		a.metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(&cfg.Fetcher, a.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	var routerOpts []fetcher.RouterOption
	if cfg.Cache.Enabled {
		cache, err := fetcher.OpenCache(cfg.Cache.Dir, cfg.Cache.TTL, logger)
		if err != nil {
			_ = httpFetcher.Close()
			return nil, fmt.Errorf("open page cache: %w", err)
		}
		routerOpts = append(routerOpts, fetcher.WithCache(cache))
	}
	router := fetcher.NewRouter(cfg, httpFetcher, a.metrics, logger, routerOpts...)
	a.closers = append(a.closers, router.Close)

	layout := storage.NewLayout(cfg.Output.DataDir)
	backends, err := openBackends(ctx, cfg, layout, logger)
	if err != nil {
		return nil, err
	}
	store := storage.NewMultiStorage(backends, logger)
	a.closers = append(a.closers, store.Close)

	var extractor inspector.TextExtractor
	if cfg.Extract.Enabled {
		extractor = extract.New(cfg.Extract, a.metrics, logger)
	}
	saver := inspector.NewSaver(layout, store, router, extractor, a.metrics, logger)

	a.dispatch, err = notify.FromConfig(cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("configure notifiers: %w", err)
	}

	a.registry, err = newRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.runner = engine.New(cfg.Engine, a.registry, router, saver, a.dispatch, a.metrics, logger)
	logger.Debug("app ready",
		"scrapers", a.registry.Len(),
		"storage", backendNames(store.Backends()),
		"notifiers", a.dispatch.Names(),
	)
	return a, nil
}

// openBackends opens the data tree and every optional backend the config
// turns on. The data tree is always first.
func openBackends(ctx context.Context, cfg *config.Config, layout storage.Layout, logger *slog.Logger) ([]storage.Storage, error) {
	var backends []storage.Storage
	fail := func(err error) ([]storage.Storage, error) {
		for _, b := range backends {
			_ = b.Close()
		}
		return nil, err
	}

	files, err := storage.NewFileStorage(layout, logger)
	if err != nil {
		return fail(fmt.Errorf("open data dir: %w", err))
	}
	backends = append(backends, files)

	if cfg.Output.JSONL != "" {
		jsonl, err := storage.NewJSONLStorage(cfg.Output.JSONL, logger)
		if err != nil {
			return fail(err)
		}
		backends = append(backends, jsonl)
	}
	if cfg.Index.SQLite != "" {
		idx, err := storage.OpenIndex(cfg.Index.SQLite, logger)
		if err != nil {
			return fail(err)
		}
		backends = append(backends, idx)
	}
	if cfg.Index.MongoURI != "" {
		mongo, err := storage.NewMongoStorage(ctx, cfg.Index.MongoURI, cfg.Index.MongoDatabase, cfg.Index.MongoCollection, logger)
		if err != nil {
			return fail(err)
		}
		backends = append(backends, mongo)
	}
	if cfg.Mirror.Enabled {
		mirror, err := storage.NewS3Mirror(ctx, cfg.Mirror, layout, logger)
		if err != nil {
			return fail(err)
		}
		backends = append(backends, mirror)
	}
	return backends, nil
}

func backendNames(backends []storage.Storage) []string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// Close releases everything newApp opened, last opened first.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
