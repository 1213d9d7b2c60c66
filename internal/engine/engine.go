// Package engine runs a selection of inspector scrapers, records their
// outcome in the status file and sends the end-of-run summary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/types"
)

// State represents the runner's current lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Runner runs scrapers against the shared fetcher and saver.
type Runner struct {
	registry    *inspector.Registry
	fetcher     inspector.Fetcher
	saver       *inspector.Saver
	dispatch    *notify.Dispatcher
	status      *StatusFile
	metrics     *observability.Metrics
	logger      *slog.Logger
	concurrency int
	now         func() time.Time

	state atomic.Int32
}

// New creates a Runner.
func New(cfg config.EngineConfig, registry *inspector.Registry, fetcher inspector.Fetcher, saver *inspector.Saver, dispatch *notify.Dispatcher, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		registry:    registry,
		fetcher:     fetcher,
		saver:       saver,
		dispatch:    dispatch,
		status:      NewStatusFile(cfg.StatusFile),
		metrics:     metrics,
		logger:      logger.With("component", "engine"),
		concurrency: concurrency,
		now:         time.Now,
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run scrapes every inspector in sel. Individual scraper failures are
// recorded in the summary rather than returned; the error is non-nil only
// when the run could not start or was cancelled.
func (r *Runner) Run(ctx context.Context, sel inspector.Selection, opts inspector.Options) (*notify.Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	scrapers, err := r.registry.Select(sel)
	if err != nil {
		return nil, err
	}
	if len(scrapers) == 0 {
		return nil, errors.New("no inspectors selected")
	}
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("runner is %s", r.State())
	}
	defer r.state.Store(int32(StateIdle))

	slugs := make([]string, len(scrapers))
	for i, s := range scrapers {
		slugs[i] = s.Info().Inspector
	}
	if err := r.status.Begin(slugs, opts.DryRun); err != nil {
		r.logger.Warn("status file problem", "path", r.status.path, "error", err)
	}

	r.dispatch.Drain()
	summary := &notify.Summary{Started: r.now(), DryRun: opts.DryRun}
	r.logger.Info("run started", "inspectors", len(scrapers), "concurrency", r.concurrency, "dry_run", opts.DryRun)

	results := make([]notify.Result, len(scrapers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, s := range scrapers {
		g.Go(func() error {
			results[i] = r.runOne(gctx, s, opts)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		r.state.Store(int32(StateStopping))
	}

	summary.Finished = r.now()
	summary.Results = results
	summary.Events = r.dispatch.Drain()

	saved, errCount := summary.Totals()
	r.logger.Info("run finished",
		"inspectors", len(results),
		"failed", len(summary.Failed()),
		"saved", saved,
		"errors", errCount,
		"elapsed", summary.Finished.Sub(summary.Started).Round(time.Millisecond),
	)

	r.dispatch.NotifySummary(context.WithoutCancel(ctx), *summary)
	if err := r.status.Finish(ctx.Err() != nil); err != nil {
		r.logger.Warn("status file not written", "error", err)
	}
	return summary, ctx.Err()
}

// runOne runs a single scraper and turns its outcome into a Result.
func (r *Runner) runOne(ctx context.Context, scraper inspector.Scraper, opts inspector.Options) notify.Result {
	info := scraper.Info()
	logger := r.logger.With("inspector", info.Inspector)

	r.metrics.ScrapersRun.Add(1)
	r.metrics.ActiveScrapers.Add(1)
	defer r.metrics.ActiveScrapers.Add(-1)

	if err := r.status.Start(info.Inspector); err != nil {
		logger.Warn("status file not written", "error", err)
	}

	start := r.now()
	session := inspector.NewSession(scraper, opts, r.fetcher, r.saver, r.dispatch, r.metrics, r.logger)
	logger.Info("scraper started", "years", len(session.Years()))

	err := safeRun(ctx, scraper, session)
	if errors.Is(err, types.ErrLimitReached) {
		logger.Info("report limit reached", "limit", opts.Limit)
		err = nil
	}

	st := session.Stats()
	res := notify.Result{
		Inspector: info.Inspector,
		Saved:     st.Saved,
		Skipped:   st.Skipped,
		Dropped:   st.Dropped,
		Errors:    st.Errors,
		NoDate:    st.NoDate,
		Duration:  r.now().Sub(start),
	}

	if err != nil {
		res.Error = err.Error()
		r.metrics.ScrapersFailed.Add(1)
		r.dispatch.Notify(context.WithoutCancel(ctx), failureEvent(info.Inspector, err))
		logger.Error("scraper failed", "error", err, "saved", st.Saved)
	} else {
		logger.Info("scraper finished",
			"saved", st.Saved,
			"skipped", st.Skipped,
			"dropped", st.Dropped,
			"errors", st.Errors,
			"elapsed", res.Duration.Round(time.Millisecond),
		)
	}

	if err := r.status.Done(res); err != nil {
		logger.Warn("status file not written", "error", err)
	}
	return res
}

// safeRun runs the scraper, turning a panic into an error so one broken
// scraper cannot take down the run.
func safeRun(ctx context.Context, scraper inspector.Scraper, session *inspector.Session) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return scraper.Run(ctx, session)
}

func failureEvent(slug string, err error) notify.Event {
	e := notify.Event{
		Level:     notify.LevelError,
		Kind:      notify.KindScraperFailed,
		Inspector: slug,
		Message:   err.Error(),
	}
	var (
		fe *types.FetchError
		pe *types.ParseError
	)
	switch {
	case errors.As(err, &fe):
		e.Kind = notify.KindHTTPError
		e.URL = fe.URL
	case errors.As(err, &pe):
		e.Kind = notify.KindParseError
		e.URL = pe.URL
	}
	return e
}
