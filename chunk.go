package webquery

import (
	"context"
)

// Chunk represents a contiguous span of extracted page text sized for
// embedding and retrieval.
type Chunk struct {
	// ID is derived from the chunk content and URL, so re-crawling an
	// unchanged page produces the same IDs.
	ID  string `json:"id"`
	URL string `json:"url"`

	// SectionPath is the heading trail leading to the chunk, outermost
	// first (e.g., ["Guide", "Installation"]).
	SectionPath []string `json:"sectionPath,omitempty"`

	Text       string    `json:"text"`
	TokenCount int       `json:"tokenCount"`

	// OverlapTokens counts the tokens at the start of Text carried over
	// from the previous chunk. Not persisted.
	OverlapTokens int `json:"overlapTokens,omitempty"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// Validate returns an error if the chunk contains invalid fields.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return Errorf(EINVALID, "chunk ID required")
	}
	if c.URL == "" {
		return Errorf(EINVALID, "chunk URL required")
	}
	if c.Text == "" {
		return Errorf(EINVALID, "chunk text required")
	}
	return nil
}

// ChunkService represents a service for managing stored chunks.
type ChunkService interface {
	// ChunksByURL retrieves all chunks for a URL in creation order.
	ChunksByURL(ctx context.Context, url string) ([]*Chunk, error)

	// DeleteChunk permanently removes a chunk.
	// Returns ENOTFOUND if the chunk does not exist.
	DeleteChunk(ctx context.Context, id string) error

	// DeleteChunksByURL removes all chunks for a URL. Removing zero rows
	// is not an error.
	DeleteChunksByURL(ctx context.Context, url string) error
}

// IndexService embeds chunks into the persistent vector index and answers
// similarity queries against it.
type IndexService interface {
	// IndexChunks embeds the chunks and replaces the stored set for the
	// URL. It verifies the persisted embedding configuration before any
	// write and returns ECONFLICT when the store was built with a
	// different model or dimension.
	IndexChunks(ctx context.Context, url string, chunks []*Chunk) error

	// Search embeds the query text and returns the nearest stored chunks
	// for the URL, best match first.
	Search(ctx context.Context, url string, query string, opts SearchOptions) ([]SearchResult, error)

	// Close releases provider resources.
	Close() error
}

// SearchOptions configures search behavior.
type SearchOptions struct {
	// Maximum number of results to return
	Limit int `json:"limit,omitempty"`

	// Minimum similarity score (0-1); results below it are dropped
	MinScore float64 `json:"minScore,omitempty"`
}

// SearchResult represents a search match.
type SearchResult struct {
	ID          string   `json:"id"`
	SectionPath []string `json:"sectionPath,omitempty"`
	Text        string   `json:"text"`
	Score       float64  `json:"score"`
}
