package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	htmlAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// ErrBodyTooLarge is returned when a response exceeds the configured body limit
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Fetcher performs bounded GET requests against collaborators: page hosts,
// document hosts and metadata APIs
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
}

// NewFetcher creates a fetcher whose transport holds at most maxConns
// connections per host, one per worker
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, maxConns int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if maxConns < 1 {
		maxConns = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = maxConns
	transport.MaxIdleConnsPerHost = maxConns

	return &Fetcher{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Client exposes the underlying HTTP client for SDKs that take one
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Get fetches url with optional extra headers and returns the body.
// Non-2xx statuses are reported as *HTTPError.
func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	f.logger.Debug("http.response", "url", url, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading response body from %s: %w", url, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, newExtractionError(KindUpstreamUnavailable, ErrBodyTooLarge, "%s is larger than %d bytes", url, f.maxBytes)
	}
	return data, nil
}

// GetPage fetches an HTML page with browser-like headers
func (f *Fetcher) GetPage(ctx context.Context, url string) ([]byte, error) {
	return f.Get(ctx, url, map[string]string{"Accept": htmlAccept})
}
