package pipeline

import (
	"errors"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/igscrape/internal/parser"
	"github.com/IshaanNene/igscrape/internal/types"
)

// --- Cleanup ---

// HTMLSanitizeMiddleware strips tags and entities that leak into titles and
// summaries scraped from inner HTML.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(r *types.Report) (*types.Report, error) {
	for _, f := range []*string{&r.Title, &r.Summary} {
		if *f == "" {
			continue
		}
		cleaned := m.stripRe.ReplaceAllString(*f, "")
		cleaned = html.UnescapeString(cleaned)
		*f = strings.Join(strings.Fields(cleaned), " ")
	}
	return r, nil
}

// DateNormalizeMiddleware rewrites PublishedOn into YYYY-MM-DD when a scraper
// stored the site's own spelling.
type DateNormalizeMiddleware struct {
	layouts []string
}

func NewDateNormalizeMiddleware(layouts ...string) *DateNormalizeMiddleware {
	return &DateNormalizeMiddleware{layouts: layouts}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(r *types.Report) (*types.Report, error) {
	if r.PublishedOn == "" {
		return r, nil
	}
	if _, err := r.Published(); err == nil {
		return r, nil
	}
	t, err := parser.ParseDate(r.PublishedOn, m.layouts...)
	if err != nil {
		// Left as-is; ValidateMiddleware reports it.
		return r, nil
	}
	r.SetPublished(t)
	return r, nil
}

// PublishedOverrideMiddleware patches publish dates a site gets wrong or
// omits, keyed by report ID.
type PublishedOverrideMiddleware struct {
	dates  map[string]string
	logger *slog.Logger
}

func NewPublishedOverrideMiddleware(dates map[string]string, logger *slog.Logger) *PublishedOverrideMiddleware {
	return &PublishedOverrideMiddleware{
		dates:  dates,
		logger: logger.With("component", "published_override"),
	}
}

func (m *PublishedOverrideMiddleware) Name() string { return "published_override" }

func (m *PublishedOverrideMiddleware) Process(r *types.Report) (*types.Report, error) {
	date, ok := m.dates[r.ReportID]
	if !ok {
		return r, nil
	}
	if r.PublishedOn != date {
		m.logger.Debug("publish date overridden", "report", r.Key(), "from", r.PublishedOn, "to", date)
	}
	r.PublishedOn = date
	r.EstimatedDate = false
	return r, nil
}

// --- Validation ---

// EarliestYear is the oldest publish year accepted for a report.
const EarliestYear = 1900

// ValidateMiddleware rejects reports that cannot be saved.
type ValidateMiddleware struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (m *ValidateMiddleware) Name() string { return "validate" }

func (m *ValidateMiddleware) Process(r *types.Report) (*types.Report, error) {
	if err := m.validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *ValidateMiddleware) validate(r *types.Report) error {
	invalid := func(field, reason string) error {
		return &types.ValidationError{Inspector: r.Inspector, ReportID: r.ReportID, Field: field, Reason: reason}
	}

	required := []struct {
		field string
		value string
	}{
		{"inspector", r.Inspector},
		{"inspector_url", r.InspectorURL},
		{"agency", r.Agency},
		{"agency_name", r.AgencyName},
		{"report_id", r.ReportID},
		{"title", r.Title},
		{"published_on", r.PublishedOn},
	}
	for _, f := range required {
		if f.value == "" {
			return invalid(f.field, "is required")
		}
	}

	if strings.ContainsAny(r.ReportID, "/\\ \t\n") {
		return invalid("report_id", "contains a path separator or whitespace")
	}

	published, err := r.Published()
	if err != nil {
		return invalid("published_on", "must be YYYY-MM-DD, got "+r.PublishedOn)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	if published.After(now()) {
		return invalid("published_on", "is in the future: "+r.PublishedOn)
	}
	if published.Year() < EarliestYear {
		return invalid("published_on", "is before 1900: "+r.PublishedOn)
	}

	switch {
	case r.Unreleased:
		if r.URL == "" && r.LandingURL == "" {
			return invalid("landing_url", "is required for unreleased reports without a url")
		}
	case r.URL == "":
		return invalid("url", "is required")
	}
	for _, f := range []struct{ field, value string }{{"url", r.URL}, {"landing_url", r.LandingURL}} {
		if f.value == "" {
			continue
		}
		if err := checkURL(f.value); err != nil {
			return invalid(f.field, err.Error())
		}
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an absolute http(s) URL")
	}
	if u.Host == "" {
		return errors.New("has no host")
	}
	return nil
}

// Validate runs the report checks outside a pipeline.
func Validate(r *types.Report, now time.Time) error {
	m := &ValidateMiddleware{Now: func() time.Time { return now }}
	return m.validate(r)
}
