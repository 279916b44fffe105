package webquery

import "context"

// ChunkOptions bounds how extracted content is split into chunks.
type ChunkOptions struct {
	// MaxTokens caps the token count of a single chunk.
	MaxTokens int `json:"maxTokens"`

	// OverlapPercent is the share of MaxTokens carried over from the end
	// of one chunk into the start of the next, 0-50.
	OverlapPercent int `json:"overlapPercent"`
}

// Validate returns an error if the options are out of range.
func (o ChunkOptions) Validate() error {
	if o.MaxTokens <= 0 {
		return Errorf(EINVALID, "chunk max tokens must be positive")
	}
	if o.OverlapPercent < 0 || o.OverlapPercent > 50 {
		return Errorf(EINVALID, "chunk overlap percent must be between 0 and 50")
	}
	return nil
}

// Chunker splits extracted content into embedding-sized chunks.
type Chunker interface {
	// Chunk splits the extraction into chunks for the given URL. Chunks
	// keep markdown structure where possible and carry the heading trail
	// they appeared under.
	Chunk(ctx context.Context, ex *Extraction, url string, opts ChunkOptions) ([]*Chunk, error)
}
