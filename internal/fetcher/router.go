package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/types"
)

// Router is the Fetcher handed to scrapers. It consults the robots.txt
// rules and the page cache, then dispatches to the HTTP fetcher or, for
// requests that ask for it, a lazily launched browser.
type Router struct {
	http    *HTTPFetcher
	cache   *Cache
	robots  *RobotsManager
	metrics *observability.Metrics
	logger  *slog.Logger

	cfg         *config.Config
	newBrowser  func() (Fetcher, error)
	browserOnce sync.Once
	browser     Fetcher
	browserErr  error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithCache enables the page cache.
func WithCache(c *Cache) RouterOption {
	return func(r *Router) { r.cache = c }
}

// WithBrowserFactory replaces how the browser fetcher is created.
func WithBrowserFactory(fn func() (Fetcher, error)) RouterOption {
	return func(r *Router) { r.newBrowser = fn }
}

// NewRouter creates a Router around an HTTP fetcher.
func NewRouter(cfg *config.Config, httpFetcher *HTTPFetcher, metrics *observability.Metrics, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		http:    httpFetcher,
		metrics: metrics,
		logger:  logger.With("component", "fetch_router"),
		cfg:     cfg,
	}
	r.robots = NewRobotsManager(cfg.Fetcher.RespectRobotsTxt, config.AppName, httpFetcher)
	r.newBrowser = func() (Fetcher, error) {
		return NewBrowserFetcher(cfg, metrics, logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch serves req from the cache when possible, otherwise from the
// fetcher its FetcherType selects.
func (r *Router) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := r.allow(ctx, req.URL); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if resp, ok := r.cache.Get(req); ok {
			r.metrics.CacheHits.Add(1)
			r.logger.Debug("cache hit", "url", req.URLString(), "inspector", req.Inspector)
			return resp, nil
		}
	}

	f, err := r.fetcherFor(req)
	if err != nil {
		return nil, err
	}

	if err := r.wait(ctx, req.URL); err != nil {
		return nil, err
	}

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(resp); err != nil {
			r.logger.Warn("cache write failed", "url", req.URLString(), "error", err)
		}
	}
	return resp, nil
}

func (r *Router) fetcherFor(req *types.Request) (Fetcher, error) {
	if req.FetcherType != types.FetcherBrowser {
		return r.http, nil
	}
	if !r.cfg.Browser.Enabled {
		return nil, fmt.Errorf("%w: %s needs a browser but browser.enabled is false", types.ErrNoFetcher, req.URLString())
	}
	r.browserOnce.Do(func() {
		r.browser, r.browserErr = r.newBrowser()
	})
	if r.browserErr != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNoFetcher, r.browserErr)
	}
	return r.browser, nil
}

// allow reports a *types.FetchError wrapping types.ErrBlocked when robots.txt
// forbids u.
func (r *Router) allow(ctx context.Context, u *url.URL) error {
	if !r.robots.IsAllowed(ctx, u) {
		return &types.FetchError{URL: u.String(), Err: types.ErrBlocked}
	}
	return nil
}

// wait sleeps for the crawl-delay of u's host, if robots.txt sets one.
func (r *Router) wait(ctx context.Context, u *url.URL) error {
	delay := r.robots.CrawlDelay(u.Scheme + "://" + u.Host)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// admit applies robots.txt and the crawl-delay to a request that bypasses
// the page cache.
func (r *Router) admit(ctx context.Context, rawURL string) error {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return err
	}
	if err := r.allow(ctx, req.URL); err != nil {
		return err
	}
	return r.wait(ctx, req.URL)
}

// Download streams a document to disk through the HTTP fetcher.
func (r *Router) Download(ctx context.Context, rawURL, dest string) (*DownloadResult, error) {
	if err := r.admit(ctx, rawURL); err != nil {
		return nil, err
	}
	return r.http.Download(ctx, rawURL, dest)
}

// Resolve returns the final URL of rawURL after redirects.
func (r *Router) Resolve(ctx context.Context, rawURL string) (string, error) {
	if err := r.admit(ctx, rawURL); err != nil {
		return "", err
	}
	return r.http.Resolve(ctx, rawURL)
}

// Close releases the browser (if launched), the cache and the HTTP client.
func (r *Router) Close() error {
	var firstErr error
	if r.browser != nil {
		firstErr = r.browser.Close()
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.http.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Type returns the fetcher type identifier.
func (r *Router) Type() string {
	return "router"
}
