package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of webquery.Extractor.
type Extractor struct {
	ExtractFn func(ctx context.Context, html string, url string) (*webquery.Extraction, error)
}

func (e *Extractor) Extract(ctx context.Context, html string, url string) (*webquery.Extraction, error) {
	return e.ExtractFn(ctx, html, url)
}
