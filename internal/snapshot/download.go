package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DownloaderConfig configures the snapshot HTTP downloader.
type DownloaderConfig struct {
	// Timeout for individual requests (default: 60s).
	Timeout time.Duration

	// MaxRetries for failed requests (default: 3).
	MaxRetries int

	// RateLimit requests per second (default: 2).
	RateLimit float64

	// RateBurst maximum burst size (default: 2).
	RateBurst int

	// UserAgent string sent with every request.
	UserAgent string

	// Transport allows injecting a custom transport for tests.
	Transport http.RoundTripper
}

// Downloader is a rate-limited, retry-capable HTTP fetcher for upstream
// source files. Upstream servers are third parties; the limiter keeps the
// pipeline polite and the bounded backoff absorbs transient 5xx responses.
type Downloader struct {
	cfg         DownloaderConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewDownloader creates a downloader with the given configuration.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "terrace/1.0"
	}
	return &Downloader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// Get fetches the body at url, respecting the rate limit and retrying
// retryable failures with exponential backoff.
func (d *Downloader) Get(ctx context.Context, url string) ([]byte, error) {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		data, err := d.getOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, wrapError(CodeDownloadFailed, true, fmt.Errorf("max retries exceeded: %w", lastErr))
}

func (d *Downloader) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}

// HTTPError represents an HTTP error response from an upstream server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server error.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

func isRetryable(err error) bool {
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.IsRateLimited() || httpErr.IsServerError()
	}
	if coded, ok := err.(*Error); ok {
		return coded.Retryable
	}
	return false
}
