package inspector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/pipeline"
	"github.com/IshaanNene/igscrape/internal/types"
)

// EventSink receives problems found during a session.
type EventSink interface {
	Notify(ctx context.Context, e notify.Event)
}

// Stats counts what happened to the reports a scraper found.
type Stats struct {
	Saved   int
	Skipped int
	Dropped int
	Errors  int
	NoDate  int
}

// Session is handed to a scraper's Run. It carries the run options and the
// shared fetcher, and owns the report pipeline for one inspector.
type Session struct {
	info     Info
	opts     Options
	years    []int
	fetcher  Fetcher
	saver    *Saver
	events   EventSink
	pipeline *pipeline.Pipeline
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewSession prepares a session for scraper.
func NewSession(scraper Scraper, opts Options, f Fetcher, saver *Saver, events EventSink, metrics *observability.Metrics, logger *slog.Logger) *Session {
	info := scraper.Info()
	logger = logger.With("inspector", info.Inspector)
	years := opts.YearRange(info.ArchiveYear)

	p := pipeline.New(logger)
	p.Use(&pipeline.TrimMiddleware{})
	p.Use(pipeline.NewHTMLSanitizeMiddleware())
	p.Use(&pipeline.DefaultsMiddleware{Type: "other"})
	p.Use(&pipeline.ReportIDMiddleware{})
	p.Use(pipeline.NewDateNormalizeMiddleware())
	if o, ok := scraper.(Overrider); ok {
		p.Use(pipeline.NewPublishedOverrideMiddleware(o.PublishedOverrides(), logger))
	}
	p.Use(&pipeline.ValidateMiddleware{Now: opts.Now})
	if opts.ReportID != "" {
		p.Use(&pipeline.ReportIDFilterMiddleware{ReportID: pipeline.SanitizeReportID(opts.ReportID)})
	} else {
		p.Use(pipeline.NewYearFilterMiddleware(years))
	}
	p.Use(pipeline.NewDedupMiddleware())

	return &Session{
		info:     info,
		opts:     opts,
		years:    years,
		fetcher:  f,
		saver:    saver,
		events:   events,
		pipeline: p,
		metrics:  metrics,
		logger:   logger,
	}
}

// Info returns the inspector being scraped.
func (s *Session) Info() Info { return s.info }

// Options returns the run options.
func (s *Session) Options() Options { return s.opts }

// Years returns the years to scrape, oldest first.
func (s *Session) Years() []int { return s.years }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// --- Fetching ---

// Fetch GETs rawURL through the shared fetcher.
func (s *Session) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	return s.Do(ctx, req)
}

// Do fetches a prepared request.
func (s *Session) Do(ctx context.Context, req *types.Request) (*types.Response, error) {
	req.Inspector = s.info.Inspector
	return s.fetcher.Fetch(ctx, req)
}

// Document fetches rawURL and parses it as HTML.
func (s *Session) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := s.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Document()
}

// Resolve follows redirects from rawURL and returns where they end.
func (s *Session) Resolve(ctx context.Context, rawURL string) (string, error) {
	return s.fetcher.Resolve(ctx, rawURL)
}

// --- Reports ---

// NewReport returns a report prefilled with the inspector's fields.
func (s *Session) NewReport() *types.Report {
	return &types.Report{
		Inspector:    s.info.Inspector,
		InspectorURL: s.info.URL,
		Agency:       s.info.Agency,
		AgencyName:   s.info.AgencyName,
	}
}

// Save runs r through the pipeline and the save path. Problems with a single
// report are sent to the event sink and do not stop the scraper; Save only
// returns an error when the scraper should stop: the context is done or the
// --limit has been reached (types.ErrLimitReached).
func (s *Session) Save(ctx context.Context, r *types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limitReached() {
		return types.ErrLimitReached
	}

	processed, err := s.pipeline.Process(r)
	if err != nil {
		s.reportError(ctx, r, err)
		return nil
	}
	if processed == nil {
		s.metrics.ReportsDropped.Add(1)
		s.count(func(st *Stats) { st.Dropped++ })
		return nil
	}

	outcome, err := s.saver.Save(ctx, processed, s.opts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.reportError(ctx, processed, err)
		return nil
	}

	switch outcome {
	case OutcomeSkipped:
		s.count(func(st *Stats) { st.Skipped++ })
	default:
		s.count(func(st *Stats) { st.Saved++ })
	}
	if s.limitReached() {
		return types.ErrLimitReached
	}
	return nil
}

func (s *Session) limitReached() bool {
	if s.opts.Limit <= 0 {
		return false
	}
	return s.Stats().Saved >= s.opts.Limit
}

func (s *Session) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// reportError turns a failed save into an event.
func (s *Session) reportError(ctx context.Context, r *types.Report, err error) {
	e := notify.Event{
		Level:     notify.LevelError,
		Kind:      notify.KindSaveFailed,
		Inspector: s.info.Inspector,
		ReportID:  r.ReportID,
		URL:       r.URL,
		Message:   err.Error(),
	}

	var (
		ve *types.ValidationError
		de *types.DuplicateReportError
		fe *types.FetchError
	)
	switch {
	case errors.As(err, &ve) && ve.Field == "published_on" && r.PublishedOn == "":
		s.NoDate(ctx, r.ReportID, r.Title, r.URL)
		return
	case errors.As(err, &ve):
		s.metrics.ReportsInvalid.Add(1)
		e.Level, e.Kind = notify.LevelWarn, notify.KindValidation
	case errors.As(err, &de):
		e.Kind = notify.KindDuplicate
	case errors.As(err, &fe):
		e.Kind = notify.KindHTTPError
		if fe.URL != "" {
			e.URL = fe.URL
		}
	}

	s.count(func(st *Stats) { st.Errors++ })
	s.emit(ctx, e)
}

// NoDate records a report skipped because no publish date could be found.
func (s *Session) NoDate(ctx context.Context, reportID, title, url string) {
	s.count(func(st *Stats) { st.NoDate++ })
	s.emit(ctx, notify.Event{
		Level:     notify.LevelWarn,
		Kind:      notify.KindNoDate,
		Inspector: s.info.Inspector,
		ReportID:  reportID,
		URL:       url,
		Message:   "no publish date found for " + quoteTitle(title),
	})
}

// PageError records a page that could not be fetched or read. Scrapers call
// it for landing pages they can skip and carry on.
func (s *Session) PageError(ctx context.Context, url string, err error) {
	kind := notify.KindSaveFailed
	var (
		fe *types.FetchError
		pe *types.ParseError
	)
	switch {
	case errors.As(err, &fe):
		kind = notify.KindHTTPError
	case errors.As(err, &pe):
		kind = notify.KindParseError
	}

	s.count(func(st *Stats) { st.Errors++ })
	s.emit(ctx, notify.Event{
		Level:     notify.LevelError,
		Kind:      kind,
		Inspector: s.info.Inspector,
		URL:       url,
		Message:   err.Error(),
	})
}

func (s *Session) emit(ctx context.Context, e notify.Event) {
	if s.events == nil {
		s.logger.Warn(e.Message, "kind", e.Kind, "report_id", e.ReportID, "url", e.URL)
		return
	}
	s.events.Notify(ctx, e)
}

func quoteTitle(title string) string {
	if title == "" {
		return "untitled report"
	}
	if len(title) > 120 {
		title = title[:120] + "..."
	}
	return `"` + title + `"`
}
