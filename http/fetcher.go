// Package http implements webquery.Fetcher over plain HTTP requests with
// conditional fetching, bounded retries, and per-domain rate limiting.
// It does not execute JavaScript, so it suits static pages and
// server-rendered sites.
package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fwojciec/webquery"
)

// DefaultFetchTimeout bounds a single HTTP request.
const DefaultFetchTimeout = 10 * time.Second

// DefaultUserAgent identifies the client to origin servers.
const DefaultUserAgent = "webquery/1.0"

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// DefaultRetryDelays returns the backoff delays between fetch attempts:
// 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// Ensure Fetcher implements webquery.Fetcher at compile time.
var _ webquery.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves HTML content from URLs using HTTP requests. Failed
// attempts against reachable-but-struggling servers are retried with
// backoff; 4xx responses other than 429 are not.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
	delays    []time.Duration
	limiter   *DomainLimiter
	log       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the timeout for a single HTTP request.
// Defaults to DefaultFetchTimeout (10s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodyBytes caps the number of response body bytes read before the
// fetch is rejected as oversized.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBody = n
	}
}

// WithRetryDelays sets the backoff delays between attempts. An empty slice
// disables retries.
func WithRetryDelays(delays []time.Duration) Option {
	return func(f *Fetcher) {
		f.delays = delays
	}
}

// WithRateLimit throttles requests to rps per domain. Zero or negative
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = NewDomainLimiter(rps)
		}
	}
}

// WithLogger sets the logger for retry reporting.
func WithLogger(log *slog.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

// NewFetcher creates a new HTTP-based Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultFetchTimeout,
		userAgent: DefaultUserAgent,
		maxBody:   DefaultMaxBodyBytes,
		delays:    DefaultRetryDelays(),
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = &http.Client{
		Timeout: f.timeout,
	}

	return f
}

// Fetch performs a GET for the URL. When cond is non-nil its validators are
// sent as conditional headers, and an unchanged page comes back with
// NotModified set and no body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, cond *webquery.FetchCondition) (*webquery.FetchResult, error) {
	if rawURL == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "fetch URL required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "invalid fetch URL %q", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt <= len(f.delays); attempt++ {
		if attempt > 0 {
			f.log.Warn("retrying fetch", "url", rawURL, "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.delays[attempt-1]):
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
				return nil, err
			}
		}

		result, retryable, err := f.do(ctx, rawURL, cond)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// do performs a single attempt. The bool reports whether the failure is
// worth retrying.
func (f *Fetcher) do(ctx context.Context, rawURL string, cond *webquery.FetchCondition) (*webquery.FetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, webquery.Errorf(webquery.EINVALID, "invalid fetch URL %q: %s", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if cond != nil {
		if cond.ETag != "" {
			req.Header.Set("If-None-Match", cond.ETag)
		}
		if cond.LastModified != "" {
			req.Header.Set("If-Modified-Since", cond.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, webquery.Errorf(webquery.EUNAVAILABLE, "fetch %s: %s", rawURL, err)
	}
	defer resp.Body.Close()

	result := &webquery.FetchResult{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	// A 304 may omit validators; keep the ones we sent.
	if cond != nil {
		if result.ETag == "" {
			result.ETag = cond.ETag
		}
		if result.LastModified == "" {
			result.LastModified = cond.LastModified
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		result.NotModified = true
		return result, false, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if ct := result.ContentType; ct != "" && !supportedContentType(ct) {
			return nil, false, webquery.Errorf(webquery.EINVALID, "unsupported content type %q for %s", ct, rawURL)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return nil, true, webquery.Errorf(webquery.EUNAVAILABLE, "read %s: %s", rawURL, err)
		}
		if int64(len(body)) > f.maxBody {
			return nil, false, webquery.Errorf(webquery.EINVALID, "response body for %s exceeds %d bytes", rawURL, f.maxBody)
		}
		result.HTML = string(body)
		return result, false, nil

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, false, webquery.Errorf(webquery.ENOTFOUND, "page not found: %s", rawURL)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, webquery.Errorf(webquery.EUNAVAILABLE, "HTTP %d for %s", resp.StatusCode, rawURL)

	default:
		return nil, false, webquery.Errorf(webquery.EUNAVAILABLE, "HTTP %d for %s", resp.StatusCode, rawURL)
	}
}

// supportedContentType reports whether the media type can yield extractable
// HTML or text.
func supportedContentType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, prefix := range []string{
		"text/html",
		"application/xhtml",
		"text/plain",
		"text/markdown",
		"application/xml",
		"text/xml",
	} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// Close releases idle connections held by the underlying client.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
