package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/IshaanNene/igscrape/internal/types"
)

// DownloadResult describes a document written to disk.
type DownloadResult struct {
	URL         string
	FinalURL    string
	Path        string
	Size        int64
	ContentType string
	SHA256      string
	Duration    time.Duration
}

// Download streams rawURL to dest. The file is written to a temporary name
// and renamed into place so a failed download never leaves a partial file.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL, dest string) (*DownloadResult, error) {
	if _, err := types.NewRequest(rawURL); err != nil {
		return nil, err
	}
	start := time.Now()

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "*/*").
		SetHeader("Accept-Encoding", "identity").
		Get(rawURL)
	if err != nil {
		f.metrics.FetchErrors.Add(1)
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		f.metrics.FetchErrors.Add(1)
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode()),
			Retryable:  isRetryableStatus(resp.StatusCode()),
		}
	}

	limit := f.cfg.MaxDownloadSize
	if limit > 0 && resp.RawResponse.ContentLength > limit {
		return nil, &types.FetchError{
			URL: rawURL,
			Err: fmt.Errorf("%w: %d bytes > %d", types.ErrTooLarge, resp.RawResponse.ContentLength, limit),
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	var reader io.Reader = body
	if limit > 0 {
		reader = io.LimitReader(body, limit+1)
	}
	size, err := io.Copy(io.MultiWriter(tmp, hasher), reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("write %s: %w", dest, err), Retryable: true}
	}
	if limit > 0 && size > limit {
		return nil, &types.FetchError{
			URL: rawURL,
			Err: fmt.Errorf("%w: more than %d bytes", types.ErrTooLarge, limit),
		}
	}
	if size == 0 {
		return nil, &types.FetchError{URL: rawURL, Err: types.ErrEmptyResponse}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("rename download into place: %w", err)
	}

	result := &DownloadResult{
		URL:         rawURL,
		FinalURL:    finalURLFromRaw(resp.RawResponse, rawURL),
		Path:        dest,
		Size:        size,
		ContentType: resp.Header().Get("Content-Type"),
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		Duration:    time.Since(start),
	}

	f.metrics.DocumentsDownloaded.Add(1)
	f.metrics.BytesDownloaded.Add(size)
	f.logger.Debug("document downloaded",
		"url", rawURL,
		"path", dest,
		"size", size,
		"sha256", result.SHA256[:16],
		"duration", result.Duration,
	)

	return result, nil
}

// Resolve follows redirects for rawURL and returns the final URL. Some IG
// sites link reports through tracking or short URLs.
func (f *HTTPFetcher) Resolve(ctx context.Context, rawURL string) (string, error) {
	if _, err := types.NewRequest(rawURL); err != nil {
		return "", err
	}

	resp, err := f.client.R().SetContext(ctx).Head(rawURL)
	if err == nil && resp.StatusCode() == http.StatusMethodNotAllowed {
		// fall back to a GET whose body is never read
		resp, err = f.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(rawURL)
		if err == nil {
			_ = resp.RawBody().Close()
		}
	}
	if err != nil {
		return "", &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	if resp.StatusCode() >= 400 {
		return "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode()),
		}
	}
	return finalURLFromRaw(resp.RawResponse, rawURL), nil
}

func finalURLFromRaw(resp *http.Response, fallback string) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}
