package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.Chunker = (*Chunker)(nil)

// Chunker is a mock implementation of webquery.Chunker.
type Chunker struct {
	ChunkFn func(ctx context.Context, ex *webquery.Extraction, url string, opts webquery.ChunkOptions) ([]*webquery.Chunk, error)
}

func (c *Chunker) Chunk(ctx context.Context, ex *webquery.Extraction, url string, opts webquery.ChunkOptions) ([]*webquery.Chunk, error) {
	return c.ChunkFn(ctx, ex, url, opts)
}
