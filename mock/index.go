package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.IndexService = (*IndexService)(nil)

// IndexService is a mock implementation of webquery.IndexService.
type IndexService struct {
	IndexChunksFn func(ctx context.Context, url string, chunks []*webquery.Chunk) error
	SearchFn      func(ctx context.Context, url string, query string, opts webquery.SearchOptions) ([]webquery.SearchResult, error)
	CloseFn       func() error
}

func (s *IndexService) IndexChunks(ctx context.Context, url string, chunks []*webquery.Chunk) error {
	return s.IndexChunksFn(ctx, url, chunks)
}

func (s *IndexService) Search(ctx context.Context, url string, query string, opts webquery.SearchOptions) ([]webquery.SearchResult, error) {
	return s.SearchFn(ctx, url, query, opts)
}

func (s *IndexService) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
