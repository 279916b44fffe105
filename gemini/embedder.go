package gemini

import (
	"context"

	"github.com/fwojciec/webquery"
	"google.golang.org/genai"
)

// DefaultEmbeddingModel is the embedding model used when none is configured.
const DefaultEmbeddingModel = "text-embedding-004"

// DefaultEmbeddingDimension is the output width requested when none is
// configured. text-embedding-004 supports truncation below its native 768.
const DefaultEmbeddingDimension = 768

// Ensure Embedder implements webquery.Embedder at compile time.
var _ webquery.Embedder = (*Embedder)(nil)

// Embedder produces embeddings with the Gemini embedding API.
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithEmbeddingModel overrides DefaultEmbeddingModel.
func WithEmbeddingModel(model string) EmbedderOption {
	return func(e *Embedder) { e.model = model }
}

// WithEmbeddingDimension overrides DefaultEmbeddingDimension.
func WithEmbeddingDimension(dim int) EmbedderOption {
	return func(e *Embedder) { e.dimension = dim }
}

// NewEmbedder creates a new Embedder on an authenticated genai client.
func NewEmbedder(client *genai.Client, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		client:    client,
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns one embedding per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, "user")
	}

	config := &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(e.dimension)),
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "gemini embed: %s", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "gemini returned %d embeddings for %d texts", got, len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, webquery.Errorf(webquery.EUNAVAILABLE, "gemini returned an empty embedding")
		}
		out[i] = emb.Values
	}
	return out, nil
}

// Dimension returns the configured output width.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// ModelName identifies the embedding model.
func (e *Embedder) ModelName() string {
	return e.model
}

// Close releases provider resources. The genai client holds no connection
// state that needs explicit teardown.
func (e *Embedder) Close() error {
	return nil
}
