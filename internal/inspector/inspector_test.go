package inspector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/igscrape/internal/extract"
	"github.com/IshaanNene/igscrape/internal/fetcher"
	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/storage"
	"github.com/IshaanNene/igscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

// --- Test doubles ---

type testScraper struct {
	info      Info
	overrides map[string]string
}

func (s *testScraper) Info() Info { return s.info }
func (s *testScraper) Run(context.Context, *Session) error { return nil }
func (s *testScraper) PublishedOverrides() map[string]string { return s.overrides }

func exampleScraper() *testScraper {
	return &testScraper{info: Info{
		Inspector:   "exampleoig",
		Name:        "Example Agency OIG",
		Agency:      "example",
		AgencyName:  "Example Agency",
		URL:         "https://oig.example.gov",
		ArchiveYear: 2015,
		Safe:        true,
	}}
}

// stubFetcher serves documents from memory.
type stubFetcher struct {
	mu          sync.Mutex
	docs        map[string]string // url -> body
	contentType string
	downloads   int
}

func (f *stubFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	body, ok := f.docs[req.URLString()]
	if !ok {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: 404}
	}
	return &types.Response{StatusCode: 200, Body: []byte(body), Request: req, FinalURL: req.URLString(), ContentType: "text/html"}, nil
}

func (f *stubFetcher) Resolve(_ context.Context, rawURL string) (string, error) { return rawURL, nil }

func (f *stubFetcher) Download(_ context.Context, rawURL, dest string) (*fetcher.DownloadResult, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()

	body, ok := f.docs[rawURL]
	if !ok {
		return nil, &types.FetchError{URL: rawURL, StatusCode: 404, Err: errors.New("HTTP 404")}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(body))
	ct := f.contentType
	if ct == "" {
		ct = "application/pdf"
	}
	return &fetcher.DownloadResult{URL: rawURL, FinalURL: rawURL, Path: dest, Size: int64(len(body)), ContentType: ct, SHA256: hex.EncodeToString(sum[:])}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Notify(_ context.Context, e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []notify.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []notify.Kind
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	layout  storage.Layout
	fetcher *stubFetcher
	events  *eventLog
	metrics *observability.Metrics
	saver   *Saver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	layout := storage.NewLayout(t.TempDir())
	files, err := storage.NewFileStorage(layout, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	f := &stubFetcher{docs: map[string]string{
		"https://oig.example.gov/reports/OIG-23-01.pdf": "%PDF-1.4 travel card",
		"https://oig.example.gov/reports/OIG-23-02.pdf": "%PDF-1.4 grants",
		"https://oig.example.gov/reports/OIG-24-01.pdf": "%PDF-1.4 it security",
	}}
	m := observability.NewMetrics(testLogger)
	return &harness{
		layout:  layout,
		fetcher: f,
		events:  &eventLog{},
		metrics: m,
		saver:   NewSaver(layout, files, f, nil, m, testLogger),
	}
}

func (h *harness) session(scraper Scraper, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = testNow
	}
	return NewSession(scraper, opts, h.fetcher, h.saver, h.events, h.metrics, testLogger)
}

func report(s *Session, id, date string) *types.Report {
	r := s.NewReport()
	r.ReportID = id
	r.Title = "Report " + id
	r.URL = "https://oig.example.gov/reports/" + id + ".pdf"
	r.PublishedOn = date
	r.Type = "audit"
	return r
}

// --- Options ---

func TestYearRange(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		archive int
		want    []int
	}{
		{"default is last year and this year", Options{}, 2010, []int{2023, 2024}},
		{"year", Options{Year: 2019}, 2010, []int{2019}},
		{"since", Options{Since: 2021}, 2010, []int{2021, 2022, 2023, 2024}},
		{"since before archive", Options{Since: 2001}, 2022, []int{2022, 2023, 2024}},
		{"since in future", Options{Since: 2030}, 2010, []int{2024}},
		{"archive", Options{Archive: true}, 2020, []int{2020, 2021, 2022, 2023, 2024}},
		{"archive unknown", Options{Archive: true}, 0, []int{2023, 2024}},
		{"year wins over archive", Options{Year: 2012, Archive: true}, 2010, []int{2012}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Now = testNow
			if diff := cmp.Diff(tt.want, tt.opts.YearRange(tt.archive)); diff != "" {
				t.Errorf("YearRange (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{Since: 2020, Limit: 5, Pages: 2, Now: testNow}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
	for name, o := range map[string]Options{
		"future year":    {Year: 2030},
		"year and since": {Year: 2020, Since: 2019},
		"negative limit": {Limit: -1},
		"negative pages": {Pages: -3},
		"dry and skip":   {DryRun: true, SkipDownloaded: true},
	} {
		o.Now = testNow
		if err := o.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if got := (Options{}).PageLimit(3); got != 3 {
		t.Errorf("PageLimit default = %d", got)
	}
	if got := (Options{Pages: 1}).PageLimit(3); got != 1 {
		t.Errorf("PageLimit = %d", got)
	}
}

// --- Registry ---

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry(testLogger)
	for _, info := range []Info{
		{Inspector: "cpb", Safe: true},
		{Inspector: "amtrak", Safe: true},
		{Inspector: "usps"},
	} {
		if err := reg.Register(&testScraper{info: info}); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.Register(&testScraper{info: Info{Inspector: "cpb"}}); err == nil {
		t.Error("duplicate slug accepted")
	}
	if err := reg.Register(&testScraper{}); err == nil {
		t.Error("empty slug accepted")
	}

	slugs := func(scrapers []Scraper) []string {
		var out []string
		for _, s := range scrapers {
			out = append(out, s.Info().Inspector)
		}
		return out
	}

	tests := []struct {
		sel  Selection
		want []string
	}{
		{Selection{}, []string{"amtrak", "cpb", "usps"}},
		{Selection{Only: []string{"usps", "cpb"}}, []string{"cpb", "usps"}},
		{Selection{Except: []string{"cpb"}}, []string{"amtrak", "usps"}},
		{Selection{Safe: true}, []string{"amtrak", "cpb"}},
	}
	for _, tt := range tests {
		got, err := reg.Select(tt.sel)
		if err != nil {
			t.Fatalf("Select(%+v): %v", tt.sel, err)
		}
		if diff := cmp.Diff(tt.want, slugs(got)); diff != "" {
			t.Errorf("Select(%+v) (-want +got):\n%s", tt.sel, diff)
		}
	}

	if _, err := reg.Select(Selection{Only: []string{"nasa"}}); !errors.Is(err, types.ErrUnknownScraper) {
		t.Errorf("expected ErrUnknownScraper, got %v", err)
	}
}

// --- Session ---

func TestSessionSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.session(exampleScraper(), Options{})

	r := report(s, "OIG-23-01", "Sept. 30, 2023")
	if err := s.Save(ctx, r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	saved, err := storage.Load(h.layout.JSONPath(r))
	if err != nil {
		t.Fatalf("report.json not written: %v", err)
	}
	if saved.PublishedOn != "2023-09-30" || saved.FileType != "pdf" || saved.Size == 0 || saved.SHA256 == "" {
		t.Errorf("saved report = %+v", saved)
	}
	if saved.InspectorURL != "https://oig.example.gov" || saved.AgencyName != "Example Agency" {
		t.Errorf("inspector fields not filled: %+v", saved)
	}
	if _, err := os.Stat(h.layout.FilePath(r)); err != nil {
		t.Errorf("document not downloaded: %v", err)
	}

	// Same report again is dropped by dedup.
	if err := s.Save(ctx, report(s, "OIG-23-01", "2023-09-30")); err != nil {
		t.Fatal(err)
	}

	// Problems are reported, not returned.
	noDate := report(s, "OIG-23-05", "")
	missing := report(s, "OIG-23-09", "2023-05-05")
	bad := report(s, "OIG-23-10", "2023-05-05")
	bad.URL = "reports/relative.pdf"
	for _, r := range []*types.Report{noDate, missing, bad} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) returned %v", r.ReportID, err)
		}
	}

	want := []notify.Kind{notify.KindNoDate, notify.KindHTTPError, notify.KindValidation}
	if diff := cmp.Diff(want, h.events.kinds()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if h.layout.Exists(missing) {
		t.Error("report with failed download was written")
	}

	wantStats := Stats{Saved: 1, Dropped: 1, Errors: 2, NoDate: 1}
	if diff := cmp.Diff(wantStats, s.Stats()); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
	if got := h.metrics.ReportsSaved.Load(); got != 1 {
		t.Errorf("ReportsSaved = %d", got)
	}
	if got := h.metrics.ReportsInvalid.Load(); got != 1 {
		t.Errorf("ReportsInvalid = %d", got)
	}
}

func TestSessionDuplicateID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.session(exampleScraper(), Options{})

	if err := s.Save(ctx, report(s, "OIG-23-01", "2023-09-30")); err != nil {
		t.Fatal(err)
	}
	clash := report(s, "OIG-23-01", "2023-09-30")
	clash.URL = "https://oig.example.gov/reports/OIG-23-02.pdf"
	if err := s.Save(ctx, clash); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]notify.Kind{notify.KindDuplicate}, h.events.kinds()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestSessionLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.session(exampleScraper(), Options{Limit: 2})

	if err := s.Save(ctx, report(s, "OIG-23-01", "2023-09-30")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.Save(ctx, report(s, "OIG-23-02", "2023-10-30")); !errors.Is(err, types.ErrLimitReached) {
		t.Fatalf("second save: expected ErrLimitReached, got %v", err)
	}
	third := report(s, "OIG-24-01", "2024-01-10")
	if err := s.Save(ctx, third); !errors.Is(err, types.ErrLimitReached) {
		t.Fatalf("third save: expected ErrLimitReached, got %v", err)
	}
	if h.layout.Exists(third) {
		t.Error("report past the limit was written")
	}
}

func TestSessionModes(t *testing.T) {
	ctx := context.Background()

	t.Run("dry run", func(t *testing.T) {
		h := newHarness(t)
		s := h.session(exampleScraper(), Options{DryRun: true})
		r := report(s, "OIG-23-01", "2023-09-30")
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
		if h.layout.Exists(r) || h.fetcher.downloads != 0 {
			t.Error("dry run wrote or downloaded")
		}
		if s.Stats().Saved != 1 {
			t.Errorf("dry run saved = %d", s.Stats().Saved)
		}
	})

	t.Run("quick", func(t *testing.T) {
		h := newHarness(t)
		s := h.session(exampleScraper(), Options{Quick: true})
		r := report(s, "OIG-23-01", "2023-09-30")
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
		if !h.layout.Exists(r) {
			t.Error("quick mode did not write JSON")
		}
		if h.fetcher.downloads != 0 {
			t.Error("quick mode downloaded the document")
		}
	})

	t.Run("skip downloaded", func(t *testing.T) {
		h := newHarness(t)
		first := h.session(exampleScraper(), Options{})
		if err := first.Save(ctx, report(first, "OIG-23-01", "2023-09-30")); err != nil {
			t.Fatal(err)
		}
		s := h.session(exampleScraper(), Options{SkipDownloaded: true})
		if err := s.Save(ctx, report(s, "OIG-23-01", "2023-09-30")); err != nil {
			t.Fatal(err)
		}
		if h.fetcher.downloads != 1 {
			t.Errorf("downloads = %d, want 1", h.fetcher.downloads)
		}
		if s.Stats().Skipped != 1 {
			t.Errorf("skipped = %d", s.Stats().Skipped)
		}
	})

	t.Run("unreleased", func(t *testing.T) {
		h := newHarness(t)
		s := h.session(exampleScraper(), Options{})
		r := report(s, "OIG-23-07", "2023-07-01")
		r.URL = ""
		r.Unreleased = true
		r.LandingURL = "https://oig.example.gov/reports/OIG-23-07"
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
		if !h.layout.Exists(r) || h.fetcher.downloads != 0 {
			t.Error("unreleased report should be written without a download")
		}
	})

	t.Run("report id", func(t *testing.T) {
		h := newHarness(t)
		s := h.session(exampleScraper(), Options{ReportID: "OIG-23-02"})
		for _, r := range []*types.Report{report(s, "OIG-23-01", "2023-09-30"), report(s, "OIG-23-02", "2023-10-30")} {
			if err := s.Save(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		if got := s.Stats(); got.Saved != 1 || got.Dropped != 1 {
			t.Errorf("stats = %+v", got)
		}
	})

	t.Run("year range", func(t *testing.T) {
		h := newHarness(t)
		s := h.session(exampleScraper(), Options{Year: 2024})
		if err := s.Save(ctx, report(s, "OIG-23-01", "2023-09-30")); err != nil {
			t.Fatal(err)
		}
		if got := s.Stats(); got.Saved != 0 || got.Dropped != 1 {
			t.Errorf("stats = %+v", got)
		}
	})
}

func TestSessionOverrides(t *testing.T) {
	h := newHarness(t)
	scraper := exampleScraper()
	scraper.overrides = map[string]string{"OIG-23-02": "2023-11-02"}
	s := h.session(scraper, Options{})

	r := report(s, "OIG-23-02", "")
	if err := s.Save(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	saved, err := storage.Load(h.layout.JSONPath(r))
	if err != nil {
		t.Fatalf("override report not written: %v", err)
	}
	if saved.PublishedOn != "2023-11-02" {
		t.Errorf("published_on = %q", saved.PublishedOn)
	}
}

func TestSaverRetypesFromContentType(t *testing.T) {
	h := newHarness(t)
	h.fetcher.docs["https://oig.example.gov/download/8812"] = "%PDF-1.7"
	s := h.session(exampleScraper(), Options{})

	r := report(s, "OIG-23-03", "2023-03-03")
	r.URL = "https://oig.example.gov/download/8812"
	if err := s.Save(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	saved, err := storage.Load(h.layout.JSONPath(r))
	if err != nil {
		t.Fatal(err)
	}
	if saved.FileType != "pdf" {
		t.Errorf("file_type = %q, want pdf", saved.FileType)
	}
	if _, err := os.Stat(filepath.Join(h.layout.Dir(saved), "report.pdf")); err != nil {
		t.Errorf("document not renamed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.layout.Dir(saved), "report.htm")); !os.IsNotExist(err) {
		t.Error("stale report.htm left behind")
	}
}

func TestSessionDocument(t *testing.T) {
	h := newHarness(t)
	h.fetcher.docs["https://oig.example.gov/reports"] = `<html><body><h1>Reports</h1></body></html>`
	s := h.session(exampleScraper(), Options{})

	doc, err := s.Document(context.Background(), "https://oig.example.gov/reports")
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Find("h1").Text(); got != "Reports" {
		t.Errorf("h1 = %q", got)
	}
	if _, err := s.Document(context.Background(), "https://oig.example.gov/missing"); err == nil {
		t.Error("expected error for missing page")
	}
	if _, err := s.Fetch(context.Background(), "ftp://oig.example.gov"); !errors.Is(err, types.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

// pdfExtractor reports fixed pdfinfo metadata and writes no text.
type pdfExtractor struct{ md extract.Metadata }

func (pdfExtractor) Supports(fileType string) bool { return fileType == "pdf" }
func (pdfExtractor) WriteText(context.Context, string, string, string, string) error {
	return extract.ErrToolMissing
}
func (e pdfExtractor) Metadata(context.Context, string) (*extract.Metadata, error) {
	md := e.md
	return &md, nil
}

func TestSaverNarrowsEstimatedDate(t *testing.T) {
	tests := []struct {
		name      string
		published string
		estimated bool
		created   time.Time
		want      string
	}{
		{"same month", "2023-03-01", true, time.Date(2023, 3, 14, 9, 21, 7, 0, time.UTC), "2023-03-14"},
		{"other month", "2023-03-01", true, time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC), "2023-03-01"},
		{"exact date kept", "2023-03-01", false, time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC), "2023-03-01"},
		{"no creation date", "2023-03-01", true, time.Time{}, "2023-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			files, err := storage.NewFileStorage(h.layout, testLogger)
			if err != nil {
				t.Fatal(err)
			}
			h.saver = NewSaver(h.layout, files, h.fetcher, pdfExtractor{md: extract.Metadata{Pages: 12, CreatedAt: tt.created}}, h.metrics, testLogger)
			s := h.session(exampleScraper(), Options{})

			r := report(s, "OIG-23-01", tt.published)
			r.EstimatedDate = tt.estimated
			if err := s.Save(context.Background(), r); err != nil {
				t.Fatal(err)
			}

			saved, err := storage.Load(h.layout.JSONPath(r))
			if err != nil {
				t.Fatal(err)
			}
			if saved.PublishedOn != tt.want || saved.EstimatedDate != tt.estimated || saved.PageCount != 12 {
				t.Errorf("saved = %s estimated=%v pages=%d", saved.PublishedOn, saved.EstimatedDate, saved.PageCount)
			}
		})
	}
}
