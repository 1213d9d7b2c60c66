// Package notify reports scraper problems and run summaries to the console,
// email, Slack and a dashboard endpoint.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/igscrape/internal/config"
)

// Level orders events by severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses "info", "warn" or "error".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown notify level %q", s)
}

// Kind classifies an event.
type Kind string

const (
	KindHTTPError     Kind = "http_error"
	KindNoDate        Kind = "no_date"
	KindValidation    Kind = "validation"
	KindParseError    Kind = "parse_error"
	KindDuplicate     Kind = "duplicate"
	KindSaveFailed    Kind = "save_failed"
	KindScraperFailed Kind = "scraper_failed"
)

// Event is one problem found while scraping.
type Event struct {
	Time      time.Time `json:"time"`
	Level     Level     `json:"level"`
	Kind      Kind      `json:"kind"`
	Inspector string    `json:"inspector"`
	ReportID  string    `json:"report_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Message   string    `json:"message"`
}

// String formats the event as one line.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Inspector, e.Kind)
	if e.ReportID != "" {
		fmt.Fprintf(&b, " %s", e.ReportID)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.URL != "" {
		fmt.Fprintf(&b, " (%s)", e.URL)
	}
	return b.String()
}

// Result is one inspector's outcome in a run.
type Result struct {
	Inspector string        `json:"inspector"`
	Saved     int           `json:"saved"`
	Skipped   int           `json:"skipped"`
	Dropped   int           `json:"dropped"`
	Errors    int           `json:"errors"`
	NoDate    int           `json:"no_date"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the scraper itself failed.
func (r Result) Failed() bool { return r.Error != "" }

// Summary describes a whole run.
type Summary struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	DryRun   bool      `json:"dry_run,omitempty"`
	Results  []Result  `json:"results"`
	Events   []Event   `json:"events,omitempty"`
}

// Failed returns the results of scrapers that failed.
func (s Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Totals adds up saved reports and errors across inspectors.
func (s Summary) Totals() (saved, errors int) {
	for _, r := range s.Results {
		saved += r.Saved
		errors += r.Errors
	}
	return saved, errors
}

// Notifier receives events as they happen.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

// SummaryNotifier receives the end-of-run summary.
type SummaryNotifier interface {
	NotifySummary(ctx context.Context, s Summary) error
}

// Dispatcher fans events out to notifiers, dropping events below MinLevel.
// Notifier failures are logged, never returned.
type Dispatcher struct {
	notifiers []Notifier
	minLevel  Level
	logger    *slog.Logger

	mu     sync.Mutex
	events []Event
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(minLevel Level, logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		minLevel:  minLevel,
		logger:    logger.With("component", "notify"),
	}
}

// FromConfig builds the configured notifiers.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) (*Dispatcher, error) {
	minLevel, err := ParseLevel(cfg.MinLevel)
	if err != nil {
		return nil, err
	}

	var notifiers []Notifier
	if cfg.Console {
		notifiers = append(notifiers, NewConsole(logger))
	}
	if cfg.Email.Server != "" && len(cfg.Email.To) > 0 {
		notifiers = append(notifiers, NewEmail(cfg.Email, logger))
	}
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, NewSlack(cfg.Slack, logger))
	}
	if cfg.Dashboard.URL != "" {
		notifiers = append(notifiers, NewDashboard(cfg.Dashboard, logger))
	}
	return NewDispatcher(minLevel, logger, notifiers...), nil
}

// Notify sends e to every notifier.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Level < d.minLevel {
		return
	}
	d.mu.Lock()
	d.events = append(d.events, e)
	d.mu.Unlock()

	for _, n := range d.notifiers {
		if err := n.Notify(ctx, e); err != nil {
			d.logger.Warn("notification failed", "notifier", n.Name(), "kind", e.Kind, "error", err)
		}
	}
}

// NotifySummary sends s to every notifier that accepts summaries.
func (d *Dispatcher) NotifySummary(ctx context.Context, s Summary) {
	for _, n := range d.notifiers {
		sn, ok := n.(SummaryNotifier)
		if !ok {
			continue
		}
		if err := sn.NotifySummary(ctx, s); err != nil {
			d.logger.Warn("summary notification failed", "notifier", n.Name(), "error", err)
		}
	}
}

// Events returns the events dispatched so far.
func (d *Dispatcher) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Drain returns the events dispatched since the last Drain and forgets them.
func (d *Dispatcher) Drain() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	events := d.events
	d.events = nil
	return events
}

// Names lists the active notifiers.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}
