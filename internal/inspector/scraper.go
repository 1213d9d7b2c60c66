// Package inspector is the harness shared by every IG scraper: scraper
// registration, run options, the per-run Session handed to a scraper, and
// the save path that validates, downloads, extracts and stores reports.
package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/IshaanNene/igscrape/internal/types"
)

// Info describes an inspector general's office and its site.
type Info struct {
	// Inspector is the short slug used in paths and on the command line.
	Inspector string `yaml:"inspector"`

	// Name is the office's display name.
	Name string `yaml:"name"`

	// Agency and AgencyName identify the agency the office oversees.
	Agency     string `yaml:"agency"`
	AgencyName string `yaml:"agency_name"`

	// URL is the office's home page, saved as inspector_url.
	URL string `yaml:"url"`

	// ArchiveYear is the earliest year the site publishes reports for.
	ArchiveYear int `yaml:"archive_year"`

	// Safe marks scrapers stable enough for unattended --safe runs.
	Safe bool `yaml:"safe"`
}

// Scraper scrapes one inspector's report listings.
type Scraper interface {
	Info() Info

	// Run walks the inspector's listing pages for the session's years and
	// calls s.Save for every report found.
	Run(ctx context.Context, s *Session) error
}

// Overrider is implemented by scrapers with a table of publish dates that
// the site gets wrong or leaves out, keyed by report ID.
type Overrider interface {
	PublishedOverrides() map[string]string
}

// --- Registry ---

// Registry holds the known scrapers by slug.
type Registry struct {
	scrapers map[string]Scraper
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		scrapers: make(map[string]Scraper),
		logger:   logger.With("component", "registry"),
	}
}

// Register adds a scraper. Slugs must be unique.
func (r *Registry) Register(s Scraper) error {
	info := s.Info()
	if info.Inspector == "" {
		return fmt.Errorf("scraper %T has no inspector slug", s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scrapers[info.Inspector]; exists {
		return fmt.Errorf("inspector %q already registered", info.Inspector)
	}
	r.scrapers[info.Inspector] = s
	r.logger.Debug("scraper registered", "inspector", info.Inspector, "safe", info.Safe)
	return nil
}

// Get returns a scraper by slug.
func (r *Registry) Get(slug string) (Scraper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[slug]
	return s, ok
}

// List returns all scrapers ordered by slug.
func (r *Registry) List() []Scraper {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scraper, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Info().Inspector < out[j].Info().Inspector
	})
	return out
}

// Len returns the number of registered scrapers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scrapers)
}

// Selection picks scrapers for a run.
type Selection struct {
	// Only lists slugs to run. Empty means all.
	Only []string
	// Except lists slugs to leave out.
	Except []string
	// Safe keeps only scrapers marked safe.
	Safe bool
}

// Select applies sel to the registry. Unknown slugs are an error.
func (r *Registry) Select(sel Selection) ([]Scraper, error) {
	for _, slug := range append(append([]string(nil), sel.Only...), sel.Except...) {
		if _, ok := r.Get(slug); !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownScraper, slug)
		}
	}

	only := toSet(sel.Only)
	except := toSet(sel.Except)

	var out []Scraper
	for _, s := range r.List() {
		info := s.Info()
		if len(only) > 0 && !only[info.Inspector] {
			continue
		}
		if except[info.Inspector] {
			continue
		}
		if sel.Safe && !info.Safe {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
