package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.Embedder = (*Embedder)(nil)

// Embedder is a mock implementation of webquery.Embedder.
type Embedder struct {
	EmbedFn     func(ctx context.Context, texts []string) ([][]float32, error)
	DimensionFn func() int
	ModelNameFn func() string
	CloseFn     func() error
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.EmbedFn(ctx, texts)
}

func (e *Embedder) Dimension() int {
	return e.DimensionFn()
}

func (e *Embedder) ModelName() string {
	return e.ModelNameFn()
}

func (e *Embedder) Close() error {
	if e.CloseFn == nil {
		return nil
	}
	return e.CloseFn()
}
