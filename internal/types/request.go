package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FetcherType selects how a request is fetched.
type FetcherType string

const (
	FetcherHTTP    FetcherType = "http"
	FetcherBrowser FetcherType = "browser"
)

// Request represents a page or document to be fetched.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Form is sent as an urlencoded POST body when set.
	Form url.Values

	// Timeout overrides the global request timeout for this request.
	Timeout time.Duration

	// NoCache bypasses the page cache for this request.
	NoCache bool

	// FetcherType specifies which fetcher to use.
	FetcherType FetcherType

	// WaitSelector makes the browser fetcher wait for an element before
	// capturing the page.
	WaitSelector string

	// Inspector is the scraper that issued the request, for logs and metrics.
	Inspector string
}

// NewRequest creates a GET request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:         u,
		Method:      http.MethodGet,
		Headers:     make(http.Header),
		FetcherType: FetcherHTTP,
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Cacheable reports whether the response may be served from the page cache.
func (r *Request) Cacheable() bool {
	return !r.NoCache && r.Method == http.MethodGet && len(r.Form) == 0
}
