package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of webquery.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string, cond *webquery.FetchCondition) (*webquery.FetchResult, error)
	CloseFn func() error
}

func (f *Fetcher) Fetch(ctx context.Context, url string, cond *webquery.FetchCondition) (*webquery.FetchResult, error) {
	return f.FetchFn(ctx, url, cond)
}

func (f *Fetcher) Close() error {
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}
