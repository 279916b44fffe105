package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/webquery"
	webqueryhttp "github.com/fwojciec/webquery/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time verification that Fetcher implements webquery.Fetcher
var _ webquery.Fetcher = (*webqueryhttp.Fetcher)(nil)

// fastRetries keeps backoff out of test runtime: two retries, 1ms apart.
func fastRetries() webqueryhttp.Option {
	return webqueryhttp.WithRetryDelays([]time.Duration{time.Millisecond, time.Millisecond})
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("returns body and validators from server", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
			_, _ = w.Write([]byte("<html><body>Hello World</body></html>"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		result, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, "<html><body>Hello World</body></html>", result.HTML)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, `"v1"`, result.ETag)
		assert.Equal(t, "Wed, 01 Jan 2025 00:00:00 GMT", result.LastModified)
		assert.False(t, result.NotModified)
	})

	t.Run("fetches unconditionally without a condition", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("If-None-Match"))
			assert.Empty(t, r.Header.Get("If-Modified-Since"))
			_, _ = w.Write([]byte("fresh"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		result, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, "fresh", result.HTML)
	})

	t.Run("sends conditional headers and reports not modified", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
			assert.Equal(t, "Wed, 01 Jan 2025 00:00:00 GMT", r.Header.Get("If-Modified-Since"))
			w.WriteHeader(http.StatusNotModified)
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		cond := &webquery.FetchCondition{
			ETag:         `"v1"`,
			LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
		}
		result, err := fetcher.Fetch(context.Background(), server.URL, cond)
		require.NoError(t, err)
		assert.True(t, result.NotModified)
		assert.Empty(t, result.HTML)

		// The 304 carried no validators, so the sent ones are kept.
		assert.Equal(t, `"v1"`, result.ETag)
		assert.Equal(t, "Wed, 01 Jan 2025 00:00:00 GMT", result.LastModified)
	})

	t.Run("prefers fresh validators on not modified", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"v2"`)
			w.WriteHeader(http.StatusNotModified)
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		result, err := fetcher.Fetch(context.Background(), server.URL, &webquery.FetchCondition{ETag: `"v1"`})
		require.NoError(t, err)
		assert.True(t, result.NotModified)
		assert.Equal(t, `"v2"`, result.ETag)
	})

	t.Run("returns not found without retrying", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(fastRetries())
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.Equal(t, webquery.ENOTFOUND, webquery.ErrorCode(err))
		assert.Equal(t, int32(1), requests.Load())
	})

	t.Run("retries server errors until success", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte("recovered"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(fastRetries())
		defer fetcher.Close()

		result, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, "recovered", result.HTML)
		assert.Equal(t, int32(2), requests.Load())
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(fastRetries())
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.Equal(t, webquery.EUNAVAILABLE, webquery.ErrorCode(err))
		assert.Contains(t, err.Error(), "503")
		assert.Equal(t, int32(3), requests.Load(), "1 initial + 2 retries")
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(fastRetries())
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.Equal(t, webquery.EUNAVAILABLE, webquery.ErrorCode(err))
		assert.Equal(t, int32(1), requests.Load())
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(webqueryhttp.WithMaxBodyBytes(16))
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
	})

	t.Run("rejects unsupported content types", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
		assert.Contains(t, err.Error(), "application/pdf")
	})

	t.Run("sends the configured user agent", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "custom-agent/2.0", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(webqueryhttp.WithUserAgent("custom-agent/2.0"))
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
	})

	t.Run("respects custom timeout option", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte("response"))
		}))
		defer server.Close()

		// Use a very short timeout that will expire before server responds
		fetcher := webqueryhttp.NewFetcher(
			webqueryhttp.WithTimeout(10*time.Millisecond),
			webqueryhttp.WithRetryDelays(nil),
		)
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.Error(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte("response"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := fetcher.Fetch(ctx, server.URL, nil)
		require.Error(t, err)
	})

	t.Run("returns error for non-existent host", func(t *testing.T) {
		t.Parallel()

		fetcher := webqueryhttp.NewFetcher(
			webqueryhttp.WithTimeout(100*time.Millisecond),
			webqueryhttp.WithRetryDelays(nil),
		)
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), "http://non-existent-host.invalid/page", nil)
		require.Equal(t, webquery.EUNAVAILABLE, webquery.ErrorCode(err))
	})

	t.Run("rejects invalid URLs", func(t *testing.T) {
		t.Parallel()

		fetcher := webqueryhttp.NewFetcher()
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), "", nil)
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))

		_, err = fetcher.Fetch(context.Background(), "not-a-url", nil)
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
	})

	t.Run("spaces out requests to the same domain", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		fetcher := webqueryhttp.NewFetcher(webqueryhttp.WithRateLimit(20)) // 50ms between requests
		defer fetcher.Close()

		start := time.Now()
		for range 2 {
			_, err := fetcher.Fetch(context.Background(), server.URL, nil)
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "second request should wait")
	})
}
