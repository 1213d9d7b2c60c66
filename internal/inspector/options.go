package inspector

import (
	"errors"
	"fmt"
	"time"
)

// Options are the per-run settings from the command line.
type Options struct {
	// Since limits the run to reports published from this year on.
	Since int
	// Year limits the run to one year. It wins over Since and Archive.
	Year int
	// Archive scrapes back to the inspector's archive year.
	Archive bool

	// ReportID saves only the report with this ID.
	ReportID string
	// Limit stops a scraper after this many saved reports. 0 means no limit.
	Limit int

	// Pages caps how many listing pages paginated scrapers walk. 0 means the
	// scraper's default.
	Pages int
	// Topics restricts scrapers that list reports by topic.
	Topics []string

	// DryRun parses and validates but writes and downloads nothing.
	DryRun bool
	// Quick writes report JSON without downloading documents.
	Quick bool
	// SkipDownloaded leaves reports whose JSON already exists untouched.
	SkipDownloaded bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Validate checks the options for contradictions.
func (o Options) Validate() error {
	var errs []error
	now := o.now().Year()
	if o.Year < 0 || o.Year > now {
		errs = append(errs, fmt.Errorf("--year must be between 1 and %d", now))
	}
	if o.Since < 0 {
		errs = append(errs, errors.New("--since must be positive"))
	}
	if o.Year > 0 && o.Since > 0 {
		errs = append(errs, errors.New("--year and --since are mutually exclusive"))
	}
	if o.Limit < 0 {
		errs = append(errs, errors.New("--limit must be >= 0"))
	}
	if o.Pages < 0 {
		errs = append(errs, errors.New("--pages must be >= 0"))
	}
	if o.DryRun && o.SkipDownloaded {
		errs = append(errs, errors.New("--dry-run and --skip-downloaded are mutually exclusive"))
	}
	return errors.Join(errs...)
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// YearRange returns the years to scrape, oldest first:
//
//	--year Y      [Y]
//	--since Y     Y..this year (clamped to the archive year and this year)
//	--archive     archive year..this year
//	default       last year..this year
func (o Options) YearRange(archiveYear int) []int {
	thisYear := o.now().Year()

	if o.Year > 0 {
		return []int{o.Year}
	}

	first := thisYear - 1
	switch {
	case o.Since > 0:
		first = o.Since
		if archiveYear > 0 && first < archiveYear {
			first = archiveYear
		}
	case o.Archive:
		first = archiveYear
		if first <= 0 {
			first = thisYear - 1
		}
	}
	if first > thisYear {
		first = thisYear
	}

	years := make([]int, 0, thisYear-first+1)
	for y := first; y <= thisYear; y++ {
		years = append(years, y)
	}
	return years
}

// PageLimit returns Pages, or def when no cap was given.
func (o Options) PageLimit(def int) int {
	if o.Pages > 0 {
		return o.Pages
	}
	return def
}
