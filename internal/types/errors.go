package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrNoDate         = errors.New("report has no publish date")
	ErrLimitReached   = errors.New("report limit reached")
	ErrBlocked        = errors.New("blocked by robots.txt")
	ErrTooLarge       = errors.New("response exceeds size limit")
	ErrEmptyResponse  = errors.New("empty response body")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrNoFetcher      = errors.New("no fetcher available for request")
	ErrUnknownScraper = errors.New("unknown inspector")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while reading a listing page.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a report record that cannot be saved.
type ValidationError struct {
	Inspector string
	ReportID  string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid report %s/%s: %s %s", e.Inspector, e.ReportID, e.Field, e.Reason)
}

// DuplicateReportError is returned when two different documents share an
// (inspector, report_id) pair.
type DuplicateReportError struct {
	Inspector string
	ReportID  string
	FirstURL  string
	SecondURL string
}

func (e *DuplicateReportError) Error() string {
	return fmt.Sprintf("duplicate report id %s/%s: %s and %s", e.Inspector, e.ReportID, e.FirstURL, e.SecondURL)
}

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the processing pipeline.
type PipelineError struct {
	Stage  string
	Report *Report
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
