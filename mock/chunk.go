package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.ChunkService = (*ChunkService)(nil)

// ChunkService is a mock implementation of webquery.ChunkService.
type ChunkService struct {
	ChunksByURLFn       func(ctx context.Context, url string) ([]*webquery.Chunk, error)
	DeleteChunkFn       func(ctx context.Context, id string) error
	DeleteChunksByURLFn func(ctx context.Context, url string) error
}

func (s *ChunkService) ChunksByURL(ctx context.Context, url string) ([]*webquery.Chunk, error) {
	return s.ChunksByURLFn(ctx, url)
}

func (s *ChunkService) DeleteChunk(ctx context.Context, id string) error {
	return s.DeleteChunkFn(ctx, id)
}

func (s *ChunkService) DeleteChunksByURL(ctx context.Context, url string) error {
	return s.DeleteChunksByURLFn(ctx, url)
}
