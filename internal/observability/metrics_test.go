package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.PagesFetched.Add(3)
	m.ReportsSaved.Add(2)
	m.ActiveScrapers.Store(1)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"igscrape_pages_fetched_total 3",
		"igscrape_reports_saved_total 2",
		"# TYPE igscrape_active_scrapers gauge",
		"igscrape_active_scrapers 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}

	snap := m.Snapshot()
	if snap["pages_fetched"] != 3 || snap["reports_saved"] != 2 {
		t.Errorf("snapshot = %v", snap)
	}
}
