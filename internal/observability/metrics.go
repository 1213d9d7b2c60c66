package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for a scrape run.
type Metrics struct {
	// Fetch metrics
	PagesFetched   atomic.Int64
	CacheHits      atomic.Int64
	FetchErrors    atomic.Int64
	FetchRetries   atomic.Int64
	BrowserFetches atomic.Int64

	// Document metrics
	DocumentsDownloaded atomic.Int64
	BytesDownloaded     atomic.Int64
	ExtractFailures     atomic.Int64

	// Report metrics
	ReportsSaved   atomic.Int64
	ReportsDropped atomic.Int64
	ReportsInvalid atomic.Int64
	ReportsSkipped atomic.Int64

	// Scraper metrics
	ScrapersRun    atomic.Int64
	ScrapersFailed atomic.Int64
	ActiveScrapers atomic.Int32

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"igscrape_pages_fetched_total", "Listing and landing pages fetched", "counter", m.PagesFetched.Load()},
		{"igscrape_cache_hits_total", "Pages served from the page cache", "counter", m.CacheHits.Load()},
		{"igscrape_fetch_errors_total", "Fetches that failed after retries", "counter", m.FetchErrors.Load()},
		{"igscrape_fetch_retries_total", "HTTP retries", "counter", m.FetchRetries.Load()},
		{"igscrape_browser_fetches_total", "Pages rendered with the headless browser", "counter", m.BrowserFetches.Load()},
		{"igscrape_documents_downloaded_total", "Report documents downloaded", "counter", m.DocumentsDownloaded.Load()},
		{"igscrape_bytes_downloaded_total", "Bytes of report documents downloaded", "counter", m.BytesDownloaded.Load()},
		{"igscrape_extract_failures_total", "Text extraction failures", "counter", m.ExtractFailures.Load()},
		{"igscrape_reports_saved_total", "Reports saved", "counter", m.ReportsSaved.Load()},
		{"igscrape_reports_dropped_total", "Reports dropped by filters", "counter", m.ReportsDropped.Load()},
		{"igscrape_reports_invalid_total", "Reports rejected by validation", "counter", m.ReportsInvalid.Load()},
		{"igscrape_reports_skipped_total", "Reports skipped because they were already downloaded", "counter", m.ReportsSkipped.Load()},
		{"igscrape_scrapers_run_total", "Scrapers started", "counter", m.ScrapersRun.Load()},
		{"igscrape_scrapers_failed_total", "Scrapers that failed", "counter", m.ScrapersFailed.Load()},
		{"igscrape_active_scrapers", "Scrapers currently running", "gauge", int64(m.ActiveScrapers.Load())},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer serves metrics until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_fetched":        m.PagesFetched.Load(),
		"cache_hits":           m.CacheHits.Load(),
		"fetch_errors":         m.FetchErrors.Load(),
		"fetch_retries":        m.FetchRetries.Load(),
		"browser_fetches":      m.BrowserFetches.Load(),
		"documents_downloaded": m.DocumentsDownloaded.Load(),
		"bytes_downloaded":     m.BytesDownloaded.Load(),
		"extract_failures":     m.ExtractFailures.Load(),
		"reports_saved":        m.ReportsSaved.Load(),
		"reports_dropped":      m.ReportsDropped.Load(),
		"reports_invalid":      m.ReportsInvalid.Load(),
		"reports_skipped":      m.ReportsSkipped.Load(),
		"scrapers_run":         m.ScrapersRun.Load(),
		"scrapers_failed":      m.ScrapersFailed.Load(),
		"active_scrapers":      int64(m.ActiveScrapers.Load()),
	}
}
