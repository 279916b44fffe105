package webquery

import "context"

// Extraction holds the main content pulled out of an HTML page.
type Extraction struct {
	// Title is the page title extracted from metadata.
	Title string

	// Markdown is the main content converted to markdown.
	// Boilerplate (nav, footer, sidebar, ads) has been removed.
	Markdown string

	// Lang is the detected content language, if known (e.g., "en").
	Lang string

	// Byline is the author attribution, if the page declares one.
	Byline string

	// Excerpt is a short page summary from metadata, if present.
	Excerpt string

	// Sections lists the markdown headings in document order.
	Sections []Section

	// Method names the extractor that produced the content, so callers
	// can tell a clean extraction from a crude fallback.
	Method string

	// Note carries a human-readable degradation notice when the primary
	// extraction path failed and a fallback produced the content.
	Note string
}

// Extractor extracts main content from HTML pages, removing boilerplate.
type Extractor interface {
	// Extract processes raw HTML and returns the main content.
	// The url identifies the page and helps resolve relative references.
	Extract(ctx context.Context, html string, url string) (*Extraction, error)
}

// ChainExtractors returns an Extractor that tries each extractor in order
// and returns the first successful result. When a later extractor wins, the
// result carries a note naming the failures that preceded it. It fails only
// when every extractor fails, returning the first error.
func ChainExtractors(extractors ...Extractor) Extractor {
	return extractorChain(extractors)
}

type extractorChain []Extractor

func (c extractorChain) Extract(ctx context.Context, html string, url string) (*Extraction, error) {
	if len(c) == 0 {
		return nil, Errorf(EINTERNAL, "no extractors configured")
	}

	var firstErr error
	var note string
	for _, ex := range c {
		res, err := ex.Extract(ctx, html, url)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			note = "primary extraction failed: " + ErrorMessage(err)
			continue
		}
		if note != "" {
			if res.Note != "" {
				res.Note = note + "; " + res.Note
			} else {
				res.Note = note
			}
		}
		return res, nil
	}
	return nil, firstErr
}
