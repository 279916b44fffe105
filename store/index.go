package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fwojciec/webquery"
)

// Compile-time interface verification.
var _ webquery.IndexService = (*Index)(nil)

// Index defaults.
const (
	DefaultEmbedBatchSize = 32
	DefaultSearchLimit    = 5
)

// Index implements webquery.IndexService over a Store and an embedding
// provider.
type Index struct {
	store     *Store
	embedder  webquery.Embedder
	batchSize int
	log       *slog.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithEmbedBatchSize bounds how many texts are sent to the embedding
// provider per request.
func WithEmbedBatchSize(n int) IndexOption {
	return func(ix *Index) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithIndexLogger sets the logger for embedding progress.
func WithIndexLogger(log *slog.Logger) IndexOption {
	return func(ix *Index) {
		if log != nil {
			ix.log = log
		}
	}
}

// NewIndex creates an Index storing into store and embedding with embedder.
func NewIndex(store *Store, embedder webquery.Embedder, opts ...IndexOption) *Index {
	ix := &Index{
		store:     store,
		embedder:  embedder,
		batchSize: DefaultEmbedBatchSize,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexChunks embeds the chunks and replaces the stored set for the URL.
// The persisted embedding configuration is verified first, so a store
// indexed under a different model or dimension fails with ECONFLICT before
// anything is embedded or written.
func (ix *Index) IndexChunks(ctx context.Context, url string, chunks []*webquery.Chunk) error {
	if url == "" {
		return webquery.Errorf(webquery.EINVALID, "index URL required")
	}

	model := ix.embedder.ModelName()
	dim := ix.embedder.Dimension()
	if err := ix.store.EnsureEmbeddingConfig(ctx, model, dim); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return err
		}
		if chunk.URL != url {
			return webquery.Errorf(webquery.EINVALID, "chunk %q belongs to %q, not %q", chunk.ID, chunk.URL, url)
		}
		texts[i] = chunk.Text
	}

	for start := 0; start < len(texts); start += ix.batchSize {
		end := min(start+ix.batchSize, len(texts))
		vectors, err := ix.embed(ctx, texts[start:end])
		if err != nil {
			return err
		}
		for i, vec := range vectors {
			if len(vec) != dim {
				return webquery.Errorf(webquery.EUNAVAILABLE,
					"embedding provider returned dimension %d, want %d", len(vec), dim)
			}
			chunks[start+i].Embedding = vec
		}
		ix.log.Debug("embedded chunk batch", "url", url, "from", start, "to", end)
	}

	return ix.store.ReplaceChunks(ctx, url, chunks)
}

// Search embeds the query and returns the nearest stored chunks for the
// URL, best match first. Results below opts.MinScore are dropped.
func (ix *Index) Search(ctx context.Context, url string, query string, opts webquery.SearchOptions) ([]webquery.SearchResult, error) {
	if url == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "search URL required")
	}
	if query == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "search query required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vectors, err := ix.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	results, err := ix.store.SimilaritySearch(ctx, url, vectors[0], limit, ix.embedder.Dimension())
	if err != nil {
		return nil, err
	}

	if opts.MinScore > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= opts.MinScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	return results, nil
}

// Close releases the embedding provider. The store is closed by its owner.
func (ix *Index) Close() error {
	return ix.embedder.Close()
}

// embed calls the provider, folding its failures into the application
// error space so callers can degrade instead of crash.
func (ix *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		var appErr *webquery.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "embedding provider: %s", err)
	}
	if len(vectors) != len(texts) {
		return nil, webquery.Errorf(webquery.EUNAVAILABLE,
			"embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
