package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/types"
)

// HTTPFetcher implements Fetcher on a shared resty client. The client is
// rate limited and retries transport errors, 429 and 5xx responses.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	cfg     *config.FetcherConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure, //nolint:gosec // some IG sites serve broken chains
		},
		DisableCompression: true, // decoded in decodeBody
	}

	f := &HTTPFetcher{
		limiter: newLimiter(cfg.RequestsPerMinute),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "http_fetcher"),
	}

	client := resty.New()
	client.SetTransport(transport)
	client.SetCookieJar(jar)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetHeader("Accept-Encoding", "gzip, deflate, br")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	client.SetRetryCount(cfg.MaxRetries)
	client.SetRetryWaitTime(cfg.RetryDelay)
	client.SetRetryMaxWaitTime(2 * time.Minute)
	client.SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
		if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
			return parseRetryAfter(resp.Header().Get("Retry-After")), nil
		}
		return cfg.RetryDelay, nil
	})
	client.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return isRetryableError(err)
		}
		return isRetryableStatus(resp.StatusCode())
	})
	client.AddRetryHook(func(resp *resty.Response, err error) {
		f.metrics.FetchRetries.Add(1)
		if resp != nil && resp.RawResponse != nil {
			// streamed responses are not closed by resty between attempts
			_ = resp.RawResponse.Body.Close()
		}
		f.logger.Debug("retrying request", "url", requestURL(resp), "error", err)
	})

	// One limiter for every request, retries included, so parallel
	// inspectors share the configured requests-per-minute budget.
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return f.limiter.Wait(req.Context())
	})

	f.client = client
	return f, nil
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// Fetch executes an HTTP request and returns the decoded response.
// Any status >= 400 left after retries is returned as a *types.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	r, cancel := f.newRequest(ctx, req)
	defer cancel()

	start := time.Now()
	httpResp, err := r.SetDoNotParseResponse(true).Execute(req.Method, req.URLString())
	duration := time.Since(start)
	f.metrics.PagesFetched.Add(1)

	if err != nil {
		f.metrics.FetchErrors.Add(1)
		return nil, &types.FetchError{
			URL:       req.URLString(),
			Err:       err,
			Retryable: isRetryableError(err),
		}
	}
	raw := httpResp.RawBody()
	defer raw.Close()

	if httpResp.StatusCode() >= 400 {
		f.metrics.FetchErrors.Add(1)
		snippet, _ := io.ReadAll(io.LimitReader(raw, 512))
		return nil, statusError(req.URLString(), httpResp, snippet)
	}

	limit := f.cfg.MaxBodySize
	if limit > 0 && httpResp.RawResponse.ContentLength > limit {
		return nil, &types.FetchError{
			URL: req.URLString(),
			Err: fmt.Errorf("%w: %d bytes > %d", types.ErrTooLarge, httpResp.RawResponse.ContentLength, limit),
		}
	}
	body, err := readLimited(raw, limit)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: isRetryableError(err)}
	}
	body, err = decodeBody(httpResp.Header().Get("Content-Encoding"), body, limit)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	resp := &types.Response{
		StatusCode:    httpResp.StatusCode(),
		Headers:       httpResp.Header(),
		Body:          body,
		Request:       req,
		ContentType:   httpResp.Header().Get("Content-Type"),
		FinalURL:      finalURLFromRaw(httpResp.RawResponse, req.URLString()),
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}

	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// newRequest builds a resty request carrying the per-request overrides.
// The returned cancel func must be called once the body has been consumed.
func (f *HTTPFetcher) newRequest(ctx context.Context, req *types.Request) (*resty.Request, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	r := f.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaderMultiValues(req.Headers)
	}
	if len(req.Form) > 0 {
		r.SetFormDataFromValues(req.Form)
	}
	return r, cancel
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.GetClient().CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return string(types.FetcherHTTP)
}

func statusError(rawURL string, resp *resty.Response, snippet []byte) *types.FetchError {
	fe := &types.FetchError{
		URL:        rawURL,
		StatusCode: resp.StatusCode(),
		Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(string(snippet))),
		Retryable:  isRetryableStatus(resp.StatusCode()),
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		fe.RetryAfter = parseRetryAfter(resp.Header().Get("Retry-After"))
	}
	return fe
}

func requestURL(resp *resty.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	return resp.Request.URL
}

// decodeBody decodes gzip, brotli and deflate bodies. The decoded size is
// held to limit as well.
func decodeBody(encoding string, body []byte, limit int64) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", encoding, err)
		}
		defer gr.Close()
		reader = gr
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	case "deflate":
		rc := flate.NewReader(bytes.NewReader(body))
		defer rc.Close()
		reader = rc
	default:
		return body, nil
	}
	decoded, err := readLimited(reader, limit)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	return decoded, nil
}

// readLimited reads r to the end, failing with types.ErrTooLarge once more
// than limit bytes arrive. A limit <= 0 reads everything.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", types.ErrTooLarge, limit)
	}
	return data, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
