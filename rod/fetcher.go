// Package rod implements webquery.Fetcher on a headless Chrome browser. It
// renders JavaScript before returning HTML, so it suits single page
// applications and docs sites that assemble their content client-side. The
// underlying browser is recycled periodically to keep Chrome's memory in
// check.
package rod

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/fwojciec/webquery"
	"github.com/go-rod/rod/lib/proto"
)

// Ensure Fetcher implements webquery.Fetcher at compile time.
var _ webquery.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves rendered HTML from URLs using Chrome browser automation.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	manager *BrowserManager
	closed  atomic.Bool
}

// NewFetcher launches a headless Chrome browser. Close must be called when
// the Fetcher is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewFetcher(opts ...ManagerOption) (*Fetcher, error) {
	manager, err := NewBrowserManager(opts...)
	if err != nil {
		return nil, err
	}
	return &Fetcher{manager: manager}, nil
}

// Fetch navigates to the URL and returns the HTML after the page load event.
// Cache validators in cond cannot be replayed through the browser, so the
// result never reports NotModified; unchanged pages are caught downstream by
// content hashing.
func (f *Fetcher) Fetch(ctx context.Context, url string, cond *webquery.FetchCondition) (*webquery.FetchResult, error) {
	if f.closed.Load() {
		return nil, webquery.Errorf(webquery.EINVALID, "fetcher is closed")
	}
	if url == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "fetch URL required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := f.manager.Browser().Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "open browser page: %s", err)
	}
	defer page.Close()

	// Bound all page operations by the caller's context.
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "navigate %s: %s", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "render %s: %s", url, err)
	}

	html, err := page.HTML()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "read rendered HTML for %s: %s", url, err)
	}
	f.manager.IncrementPageCount()

	// The DevTools protocol reports load success, not a status line.
	return &webquery.FetchResult{
		HTML:        html,
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
	}, nil
}

// Close releases browser resources. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	return f.manager.Close()
}
