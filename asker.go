package webquery

import "context"

// Asker provides natural language question answering over indexed pages.
type Asker interface {
	// Ask answers a question about a previously indexed page, grounding
	// the answer in its most relevant chunks.
	// Returns ENOTFOUND if the URL has no indexed content.
	Ask(ctx context.Context, url string, question string) (string, error)
}
