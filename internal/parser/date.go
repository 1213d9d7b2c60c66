package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/IshaanNene/igscrape/internal/types"
)

// DefaultDateLayouts are tried when ParseDate is given no layouts.
var DefaultDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"2006-01-02",
	"01-02-2006",
	"01.02.2006",
}

var (
	ordinalRe    = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	septRe       = regexp.MustCompile(`(?i)\bsept\b\.?`)
	monthDotRe   = regexp.MustCompile(`\b(Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.`)
	spaceComma   = regexp.MustCompile(`\s+,`)
	commaNoSpace = regexp.MustCompile(`,(\S)`)
)

// CleanDate normalizes the date spellings IG sites use: ordinals, "Sept.",
// abbreviations with periods, stray spaces around commas.
func CleanDate(text string) string {
	s := collapseSpace(text)
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = septRe.ReplaceAllString(s, "Sep")
	s = monthDotRe.ReplaceAllString(s, "$1")
	s = spaceComma.ReplaceAllString(s, ",")
	s = commaNoSpace.ReplaceAllString(s, ", $1")
	return strings.Trim(s, " .;:")
}

// ParseDate parses text with the given layouts (DefaultDateLayouts when none
// are given), then falls back to dateparse. Text without a day, such as
// "2023" or "March 2023", only parses through an explicit layout; callers
// that accept it use FindMonthYear and mark the report estimated_date. The
// returned error wraps types.ErrNoDate.
func ParseDate(text string, layouts ...string) (time.Time, error) {
	cleaned := CleanDate(text)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", types.ErrNoDate)
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, nil
		}
	}
	if partialDateRe.MatchString(cleaned) {
		return time.Time{}, fmt.Errorf("%w: %q has no day", types.ErrNoDate, text)
	}
	t, err := dateparse.ParseIn(cleaned, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", types.ErrNoDate, text)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

const monthNames = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sept?(?:ember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?`

// partialDateRe matches text naming a year or a month but no day, which
// dateparse would otherwise fill in with the first.
var partialDateRe = regexp.MustCompile(`(?i)^(?:\d{1,6}|\d{4}[-/.]\d{1,2}|\d{1,2}[-/.]\d{4}|` + monthNames + `,?\s+\d{4}|(?:FY|CY)\s*\d{2,4})$`)

// findDatePatterns locate a date inside free text, most specific first.
var findDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(monthNames + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`),
	regexp.MustCompile(`\d{1,2}\s+` + monthNames + `\s+\d{4}`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2}\b`),
}

// FindDate returns the first parseable date found in free text, such as
// "Issued on March 3rd, 2021 to the Secretary".
func FindDate(text string) (time.Time, error) {
	text = collapseSpace(text)
	for _, re := range findDatePatterns {
		for _, m := range re.FindAllString(text, -1) {
			if t, err := ParseDate(m); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: none found in %q", types.ErrNoDate, truncate(text, 80))
}

// FindMonthYear finds a "Month YYYY" date and returns the first of that month.
// Callers mark such reports as estimated_date.
func FindMonthYear(text string) (time.Time, bool) {
	m := monthYearRe.FindString(collapseSpace(text))
	if m == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"January 2006", "Jan 2006"} {
		if t, err := time.Parse(layout, CleanDate(m)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var monthYearRe = regexp.MustCompile(monthNames + `\s+\d{4}`)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
