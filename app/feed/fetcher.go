package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrNotModified reports that the origin returned 304 for a conditional
// request. It is a zero-effort success, not a failure.
var ErrNotModified = errors.New("feed not modified")

const maxPayloadBytes = 10 * 1024 * 1024

// FetchError carries the HTTP status and whether the failure is worth
// retrying at the next attempt.
type FetchError struct {
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch failed with HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchResult is a successfully retrieved payload plus the validator tokens
// the origin returned. Persisting the tokens is the caller's responsibility.
type FetchResult struct {
	Body         []byte
	ETag         string
	LastModified string
}

// Fetcher performs conditional retrieval of source payloads with bounded
// retries for transient failures.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

func NewFetcher(userAgent string, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent:  userAgent,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// SetClient replaces the underlying HTTP client. Used by tests.
func (f *Fetcher) SetClient(client *http.Client) {
	f.client = client
}

// Fetch retrieves the payload at url, sending the stored validator tokens as
// conditional headers. Transient failures (network errors, timeouts, 5xx,
// 429) are retried up to maxRetries with a growing delay; other 4xx statuses
// fail immediately. A 304 response returns ErrNotModified together with a
// result carrying the (possibly refreshed) validator tokens.
func (f *Fetcher) Fetch(ctx context.Context, url, etag, lastModified string) (*FetchResult, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		// Conditional headers only on the first attempt: a retry after a
		// transient failure should see the full payload.
		reqETag, reqLastModified := etag, lastModified
		if attempt > 0 {
			reqETag, reqLastModified = "", ""
		}

		result, err := f.attempt(ctx, url, reqETag, reqLastModified)
		if err == nil || errors.Is(err, ErrNotModified) {
			return result, err
		}

		lastErr = err

		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && !fetchErr.Transient {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", f.maxRetries+1, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url, etag, lastModified string) (*FetchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("failed to create request: %w", err), Transient: false}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		result := &FetchResult{
			ETag:         firstNonEmpty(resp.Header.Get("ETag"), etag),
			LastModified: firstNonEmpty(resp.Header.Get("Last-Modified"), lastModified),
		}
		return result, ErrNotModified
	}

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Transient:  transient,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("failed to read response body: %w", err), Transient: true}
	}

	return &FetchResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
