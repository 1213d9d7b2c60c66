package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/fetcher"
	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/storage"
	"github.com/IshaanNene/igscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

// --- Test doubles ---

type funcScraper struct {
	slug string
	run  func(ctx context.Context, s *inspector.Session) error
}

func (f *funcScraper) Info() inspector.Info {
	return inspector.Info{
		Inspector:   f.slug,
		Name:        strings.ToUpper(f.slug) + " OIG",
		Agency:      f.slug,
		AgencyName:  strings.ToUpper(f.slug),
		URL:         "https://" + f.slug + ".example.gov/oig",
		ArchiveYear: 2020,
		Safe:        true,
	}
}

func (f *funcScraper) Run(ctx context.Context, s *inspector.Session) error { return f.run(ctx, s) }

// saving returns a Run that saves n dated reports.
func saving(n int) func(context.Context, *inspector.Session) error {
	return func(ctx context.Context, s *inspector.Session) error {
		for i := 1; i <= n; i++ {
			r := s.NewReport()
			r.ReportID = fmt.Sprintf("%s-24-%02d", s.Info().Inspector, i)
			r.Title = "Report " + r.ReportID
			r.URL = s.Info().URL + "/" + r.ReportID + ".pdf"
			r.PublishedOn = "2024-03-01"
			if err := s.Save(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}
}

// offlineFetcher fails every request.
type offlineFetcher struct{}

func (offlineFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	return nil, &types.FetchError{URL: req.URLString(), StatusCode: 503, Err: errors.New("HTTP 503")}
}

func (offlineFetcher) Resolve(_ context.Context, rawURL string) (string, error) { return rawURL, nil }

func (offlineFetcher) Download(_ context.Context, rawURL, _ string) (*fetcher.DownloadResult, error) {
	return nil, &types.FetchError{URL: rawURL, StatusCode: 503, Err: errors.New("HTTP 503")}
}

// recorder is a notifier that keeps everything it is sent.
type recorder struct {
	mu        sync.Mutex
	events    []notify.Event
	summaries []notify.Summary
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) NotifySummary(_ context.Context, s notify.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return nil
}

type harness struct {
	runner   *Runner
	registry *inspector.Registry
	recorder *recorder
	metrics  *observability.Metrics
	layout   storage.Layout
	status   string
}

func newHarness(t *testing.T, concurrency int, scrapers ...inspector.Scraper) *harness {
	t.Helper()
	dir := t.TempDir()
	layout := storage.NewLayout(filepath.Join(dir, "data"))
	files, err := storage.NewFileStorage(layout, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	reg := inspector.NewRegistry(testLogger)
	for _, s := range scrapers {
		if err := reg.Register(s); err != nil {
			t.Fatal(err)
		}
	}

	rec := &recorder{}
	metrics := observability.NewMetrics(testLogger)
	statusPath := filepath.Join(dir, "status.json")
	saver := inspector.NewSaver(layout, files, offlineFetcher{}, nil, metrics, testLogger)
	cfg := config.EngineConfig{Concurrency: concurrency, StatusFile: statusPath}

	r := New(cfg, reg, offlineFetcher{}, saver, notify.NewDispatcher(notify.LevelInfo, testLogger, rec), metrics, testLogger)
	r.now = testNow
	r.status.now = testNow
	return &harness{runner: r, registry: reg, recorder: rec, metrics: metrics, layout: layout, status: statusPath}
}

func quickOptions() inspector.Options {
	return inspector.Options{Year: 2024, Quick: true, Now: testNow}
}

// --- Runner Tests ---

func TestRunnerRun(t *testing.T) {
	h := newHarness(t, 2,
		&funcScraper{slug: "alpha", run: saving(2)},
		&funcScraper{slug: "broken", run: func(context.Context, *inspector.Session) error {
			var m map[string]int
			m["boom"]++
			return nil
		}},
		&funcScraper{slug: "offline", run: func(ctx context.Context, s *inspector.Session) error {
			_, err := s.Document(ctx, "https://offline.example.gov/oig/reports")
			return err
		}},
	)

	summary, err := h.runner.Run(context.Background(), inspector.Selection{}, quickOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(summary.Results))
	}
	alpha, broken, offline := summary.Results[0], summary.Results[1], summary.Results[2]
	if alpha.Inspector != "alpha" || alpha.Saved != 2 || alpha.Failed() {
		t.Errorf("alpha = %+v", alpha)
	}
	if !broken.Failed() || !strings.Contains(broken.Error, "panic") {
		t.Errorf("broken = %+v", broken)
	}
	if !offline.Failed() {
		t.Errorf("offline = %+v", offline)
	}

	if _, err := os.Stat(filepath.Join(h.layout.DataDir, "alpha", "2024", "alpha-24-01", "report.json")); err != nil {
		t.Errorf("report not saved: %v", err)
	}

	kinds := map[string]notify.Kind{}
	for _, e := range summary.Events {
		kinds[e.Inspector] = e.Kind
	}
	want := map[string]notify.Kind{"broken": notify.KindScraperFailed, "offline": notify.KindHTTPError}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds (-want +got):\n%s", diff)
	}

	if len(h.recorder.summaries) != 1 {
		t.Fatalf("expected 1 summary notification, got %d", len(h.recorder.summaries))
	}
	if got := h.recorder.summaries[0]; len(got.Failed()) != 2 || !got.Started.Equal(testNow()) {
		t.Errorf("summary = %+v", got)
	}

	if got := h.metrics.ScrapersRun.Load(); got != 3 {
		t.Errorf("ScrapersRun = %d, want 3", got)
	}
	if got := h.metrics.ScrapersFailed.Load(); got != 2 {
		t.Errorf("ScrapersFailed = %d, want 2", got)
	}
	if got := h.metrics.ActiveScrapers.Load(); got != 0 {
		t.Errorf("ActiveScrapers = %d, want 0", got)
	}
	if h.runner.State() != StateIdle {
		t.Errorf("state after run = %s", h.runner.State())
	}
}

func TestRunnerStatusFile(t *testing.T) {
	h := newHarness(t, 1,
		&funcScraper{slug: "alpha", run: saving(1)},
		&funcScraper{slug: "beta", run: func(context.Context, *inspector.Session) error {
			return errors.New("listing moved")
		}},
	)

	if _, err := h.runner.Run(context.Background(), inspector.Selection{}, quickOptions()); err != nil {
		t.Fatal(err)
	}

	st, err := LoadStatus(h.status)
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if st.State != RunFinished || !st.Finished.Equal(testNow()) {
		t.Errorf("status = %+v", st)
	}

	var got []string
	for _, is := range st.Sorted() {
		got = append(got, fmt.Sprintf("%s %s saved=%d %s", is.Inspector, is.State, is.Saved, is.Error))
	}
	want := []string{"alpha ok saved=1 ", "beta failed saved=0 listing moved"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("inspectors (-want +got):\n%s", diff)
	}
}

func TestStatusFileKeepsEarlierInspectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	first := NewStatusFile(path)
	if err := first.Begin([]string{"alpha"}, false); err != nil {
		t.Fatal(err)
	}
	if err := first.Done(notify.Result{Inspector: "alpha", Saved: 4}); err != nil {
		t.Fatal(err)
	}
	if err := first.Finish(false); err != nil {
		t.Fatal(err)
	}

	second := NewStatusFile(path)
	if err := second.Begin([]string{"beta"}, true); err != nil {
		t.Fatal(err)
	}
	snap := second.Snapshot()
	if snap.State != RunRunning || !snap.DryRun {
		t.Errorf("snapshot = %+v", snap)
	}
	if a := snap.Inspectors["alpha"]; a == nil || a.State != InspectorOK || a.Saved != 4 {
		t.Errorf("alpha not carried over: %+v", a)
	}
	if b := snap.Inspectors["beta"]; b == nil || b.State != InspectorPending {
		t.Errorf("beta = %+v", b)
	}
}

func TestStatusFileDisabled(t *testing.T) {
	f := NewStatusFile("")
	if err := f.Begin([]string{"alpha"}, false); err != nil {
		t.Fatal(err)
	}
	if err := f.Done(notify.Result{Inspector: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := f.Finish(false); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerLimitIsSuccess(t *testing.T) {
	h := newHarness(t, 1, &funcScraper{slug: "alpha", run: saving(5)})

	opts := quickOptions()
	opts.Limit = 2
	summary, err := h.runner.Run(context.Background(), inspector.Selection{}, opts)
	if err != nil {
		t.Fatal(err)
	}
	res := summary.Results[0]
	if res.Failed() || res.Saved != 2 {
		t.Errorf("result = %+v, want 2 saved and no error", res)
	}
}

func TestRunnerConcurrencyLimit(t *testing.T) {
	var active, peak atomic.Int32
	run := func(ctx context.Context, _ *inspector.Session) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	var scrapers []inspector.Scraper
	for i := range 6 {
		scrapers = append(scrapers, &funcScraper{slug: fmt.Sprintf("s%d", i), run: run})
	}
	h := newHarness(t, 2, scrapers...)

	summary, err := h.runner.Run(context.Background(), inspector.Selection{}, quickOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Results) != 6 {
		t.Errorf("expected 6 results, got %d", len(summary.Results))
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRunnerSelection(t *testing.T) {
	h := newHarness(t, 1,
		&funcScraper{slug: "alpha", run: saving(0)},
		&funcScraper{slug: "beta", run: saving(0)},
	)
	ctx := context.Background()

	summary, err := h.runner.Run(ctx, inspector.Selection{Except: []string{"alpha"}}, quickOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Inspector != "beta" {
		t.Errorf("results = %+v", summary.Results)
	}

	if _, err := h.runner.Run(ctx, inspector.Selection{Only: []string{"gamma"}}, quickOptions()); !errors.Is(err, types.ErrUnknownScraper) {
		t.Errorf("unknown inspector: got %v", err)
	}

	bad := quickOptions()
	bad.Since = 2020
	if _, err := h.runner.Run(ctx, inspector.Selection{}, bad); err == nil {
		t.Error("expected an error for --year with --since")
	}
}

func TestRunnerCancelled(t *testing.T) {
	h := newHarness(t, 1, &funcScraper{slug: "alpha", run: saving(3)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.runner.Run(ctx, inspector.Selection{}, quickOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary == nil || summary.Results[0].Saved != 0 {
		t.Errorf("summary = %+v", summary)
	}

	st, err := LoadStatus(h.status)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != RunInterrupted {
		t.Errorf("status state = %s, want %s", st.State, RunInterrupted)
	}
	if len(h.recorder.summaries) != 1 {
		t.Errorf("summary not sent after cancel")
	}
}

func TestFailureEvent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind notify.Kind
		url  string
	}{
		{"fetch", fmt.Errorf("listing: %w", &types.FetchError{URL: "https://x.gov/r", StatusCode: 500}), notify.KindHTTPError, "https://x.gov/r"},
		{"parse", &types.ParseError{URL: "https://x.gov/p", Selector: "table", Err: errors.New("no rows")}, notify.KindParseError, "https://x.gov/p"},
		{"other", errors.New("boom"), notify.KindScraperFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := failureEvent("alpha", tt.err)
			if e.Kind != tt.kind || e.URL != tt.url || e.Level != notify.LevelError {
				t.Errorf("failureEvent = %+v", e)
			}
		})
	}
}

func TestRunnerCorruptStatusFile(t *testing.T) {
	for _, content := range []string{"", "{", `{"inspectors": [1, 2]}`} {
		h := newHarness(t, 2,
			&funcScraper{slug: "alpha", run: saving(1)},
			&funcScraper{slug: "beta", run: saving(1)},
		)
		if err := os.WriteFile(h.status, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		summary, err := h.runner.Run(context.Background(), inspector.Selection{}, quickOptions())
		if err != nil {
			t.Fatalf("Run with status %q: %v", content, err)
		}
		if len(summary.Failed()) != 0 {
			t.Errorf("status %q: failed = %+v", content, summary.Failed())
		}

		st, err := LoadStatus(h.status)
		if err != nil {
			t.Fatalf("status %q not rewritten: %v", content, err)
		}
		if st.State != RunFinished || len(st.Inspectors) != 2 || st.Inspectors["alpha"].State != InspectorOK {
			t.Errorf("status %q: rewritten as %+v", content, st)
		}
	}
}

func TestStatusFileStartWithoutBegin(t *testing.T) {
	f := NewStatusFile(filepath.Join(t.TempDir(), "status.json"))
	f.now = testNow
	if err := f.Start("cpb"); err != nil {
		t.Fatal(err)
	}
	if err := f.Done(notify.Result{Inspector: "nea", Saved: 1}); err != nil {
		t.Fatal(err)
	}
	snap := f.Snapshot()
	if snap.Inspectors["cpb"].State != InspectorRunning || snap.Inspectors["nea"].State != InspectorOK {
		t.Errorf("snapshot = %+v", snap.Inspectors)
	}
}

func TestRunnerEventsDoNotAccumulate(t *testing.T) {
	h := newHarness(t, 1, &funcScraper{slug: "offline", run: func(ctx context.Context, s *inspector.Session) error {
		_, err := s.Document(ctx, "https://offline.example.gov/oig/reports")
		return err
	}})

	for i := 0; i < 3; i++ {
		summary, err := h.runner.Run(context.Background(), inspector.Selection{}, quickOptions())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(summary.Events) != 1 || summary.Events[0].Kind != notify.KindHTTPError {
			t.Errorf("run %d events = %+v", i, summary.Events)
		}
		if held := len(h.runner.dispatch.Events()); held != 0 {
			t.Errorf("run %d: dispatcher still holds %d events", i, held)
		}
	}
	if len(h.recorder.events) != 3 {
		t.Errorf("notifier saw %d events, want 3", len(h.recorder.events))
	}
}
