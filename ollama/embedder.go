// Package ollama implements webquery.Embedder backed by a local Ollama
// server, for fully offline indexing and search.
package ollama

import (
	"context"

	"github.com/fwojciec/webquery"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "nomic-embed-text"

	// DefaultDimension is the vector width DefaultModel produces.
	DefaultDimension = 768

	// DefaultServerURL points at a locally running Ollama instance.
	DefaultServerURL = "http://localhost:11434"
)

// Ensure Embedder implements webquery.Embedder at compile time.
var _ webquery.Embedder = (*Embedder)(nil)

// Embedder produces embeddings via an Ollama server.
type Embedder struct {
	llm       *ollama.LLM
	model     string
	dimension int
}

// Option configures an Embedder.
type Option func(*settings)

type settings struct {
	model     string
	dimension int
	serverURL string
}

// WithModel overrides the embedding model.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithDimension declares the vector width of the configured model.
func WithDimension(dim int) Option {
	return func(s *settings) { s.dimension = dim }
}

// WithServerURL points the embedder at a non-default Ollama server.
func WithServerURL(url string) Option {
	return func(s *settings) { s.serverURL = url }
}

// NewEmbedder creates an Embedder talking to an Ollama server.
func NewEmbedder(opts ...Option) (*Embedder, error) {
	s := settings{
		model:     DefaultModel,
		dimension: DefaultDimension,
		serverURL: DefaultServerURL,
	}
	for _, opt := range opts {
		opt(&s)
	}

	llm, err := ollama.New(ollama.WithModel(s.model), ollama.WithServerURL(s.serverURL))
	if err != nil {
		return nil, webquery.Errorf(webquery.EINTERNAL, "ollama init: %s", err)
	}

	return &Embedder{llm: llm, model: s.model, dimension: s.dimension}, nil
}

// Embed returns one embedding per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "ollama embed: %s", err)
	}
	if len(vectors) != len(texts) {
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "ollama returned %d embeddings for %d texts", len(vectors), len(texts))
	}
	for _, vec := range vectors {
		if len(vec) == 0 {
			return nil, webquery.Errorf(webquery.EUNAVAILABLE, "ollama returned an empty embedding")
		}
	}

	return vectors, nil
}

// Dimension returns the configured vector width.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// ModelName returns the configured model identifier.
func (e *Embedder) ModelName() string {
	return e.model
}

// Close releases no resources; requests are stateless HTTP calls.
func (e *Embedder) Close() error {
	return nil
}
