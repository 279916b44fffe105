package webquery

import "context"

// FetchCondition carries cache validators from a previous crawl. A fetcher
// sends them as conditional request headers so unchanged pages come back
// as NotModified without a body.
type FetchCondition struct {
	ETag         string
	LastModified string
}

// FetchResult holds the outcome of fetching a URL.
type FetchResult struct {
	// HTML is the response body. Empty when NotModified is set.
	HTML string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// ContentType is the media type reported by the server.
	ContentType string

	// NotModified reports that the server validated the condition and the
	// cached content is still current.
	NotModified bool

	// ETag and LastModified are validators from the response, stored for
	// the next conditional fetch.
	ETag         string
	LastModified string
}

// Fetcher retrieves HTML from URLs.
type Fetcher interface {
	// Fetch performs a GET for the URL, conditional when cond is non-nil.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string, cond *FetchCondition) (*FetchResult, error)

	// Close releases client resources.
	// Must be called when the Fetcher is no longer needed.
	Close() error
}
