package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/igscrape/internal/types"
)

// Middleware processes a report and returns the (possibly modified) report.
// Return nil to drop the report from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a report. Return nil to drop the report.
	Process(report *types.Report) (*types.Report, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the report through all middleware in order.
func (p *Pipeline) Process(report *types.Report) (*types.Report, error) {
	current := report

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Report: current,
				Err:    err,
			}
		}
		if result == nil {
			p.logger.Debug("report dropped", "stage", mw.Name(), "report", report.Key())
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from the free-text fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(r *types.Report) (*types.Report, error) {
	for _, f := range []*string{
		&r.ReportID, &r.URL, &r.Title, &r.PublishedOn, &r.Type,
		&r.Topic, &r.Summary, &r.LandingURL, &r.FileType,
	} {
		*f = strings.TrimSpace(*f)
	}
	return r, nil
}

// DefaultsMiddleware fills in type and file_type when a scraper left them
// empty.
type DefaultsMiddleware struct {
	Type string
}

func (m *DefaultsMiddleware) Name() string { return "defaults" }

func (m *DefaultsMiddleware) Process(r *types.Report) (*types.Report, error) {
	if r.Type == "" {
		r.Type = m.Type
		if r.Type == "" {
			r.Type = "other"
		}
	}
	if r.FileType == "" && r.URL != "" {
		r.FileType = types.FileTypeFromURL(r.URL)
	}
	return r, nil
}

// ReportIDMiddleware rewrites report IDs into something usable as a
// directory name.
type ReportIDMiddleware struct{}

var reportIDReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "?", "", "#", "", "*", "", "\"", "", "<", "", ">", "", "|", "-",
)

func (m *ReportIDMiddleware) Name() string { return "report_id" }

func (m *ReportIDMiddleware) Process(r *types.Report) (*types.Report, error) {
	r.ReportID = SanitizeReportID(r.ReportID)
	return r, nil
}

// SanitizeReportID replaces path separators and whitespace with dashes.
func SanitizeReportID(id string) string {
	id = reportIDReplacer.Replace(id)
	id = strings.Join(strings.Fields(id), "-")
	for strings.Contains(id, "--") {
		id = strings.ReplaceAll(id, "--", "-")
	}
	return strings.Trim(id, "-.")
}

// ReportIDFilterMiddleware keeps only the report with the given ID.
type ReportIDFilterMiddleware struct {
	ReportID string
}

func (m *ReportIDFilterMiddleware) Name() string { return "report_id_filter" }

func (m *ReportIDFilterMiddleware) Process(r *types.Report) (*types.Report, error) {
	if m.ReportID != "" && r.ReportID != m.ReportID {
		return nil, nil
	}
	return r, nil
}

// YearFilterMiddleware drops reports published outside Years.
type YearFilterMiddleware struct {
	years map[int]bool
}

func NewYearFilterMiddleware(years []int) *YearFilterMiddleware {
	m := &YearFilterMiddleware{years: make(map[int]bool, len(years))}
	for _, y := range years {
		m.years[y] = true
	}
	return m
}

func (m *YearFilterMiddleware) Name() string { return "year_filter" }

func (m *YearFilterMiddleware) Process(r *types.Report) (*types.Report, error) {
	if len(m.years) == 0 {
		return r, nil
	}
	if !m.years[r.Year()] {
		return nil, nil
	}
	return r, nil
}

// DedupMiddleware enforces unique (inspector, report_id) pairs. A repeat of
// the same document is dropped; a second document under the same ID is an
// error.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]string // key -> url
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]string),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(r *types.Report) (*types.Report, error) {
	key := r.Key()
	url := r.URL
	if url == "" {
		url = r.LandingURL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, exists := m.seen[key]; exists {
		if prev == url {
			return nil, nil
		}
		return nil, &types.DuplicateReportError{
			Inspector: r.Inspector,
			ReportID:  r.ReportID,
			FirstURL:  prev,
			SecondURL: url,
		}
	}
	m.seen[key] = url
	return r, nil
}

// Seen returns how many distinct reports passed the middleware.
func (m *DedupMiddleware) Seen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
