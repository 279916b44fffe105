package webquery

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Embed returns one embedding per input text, in input order.
	// Every returned vector has length Dimension().
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the width of the vectors this embedder produces.
	Dimension() int

	// ModelName identifies the embedding model. Stored alongside vectors
	// so an index is never mixed across models.
	ModelName() string

	// Close releases provider resources.
	Close() error
}
