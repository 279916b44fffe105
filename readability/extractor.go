// Package readability provides a fallback content extractor built on
// go-readability, for pages where trafilatura finds nothing.
package readability

import (
	"context"
	"net/url"
	"strings"

	"github.com/fwojciec/webquery"
	"github.com/go-shiori/go-readability"
)

// Ensure Extractor implements webquery.Extractor at compile time.
var _ webquery.Extractor = (*Extractor)(nil)

// Extractor wraps go-readability to extract main content from HTML.
type Extractor struct {
	conv webquery.Converter
}

// NewExtractor creates a new Extractor. Extracted content is rendered to
// markdown with conv.
func NewExtractor(conv webquery.Converter) *Extractor {
	return &Extractor{conv: conv}
}

// Extract processes raw HTML and returns the main content.
func (e *Extractor) Extract(ctx context.Context, rawHTML string, pageURL string) (*webquery.Extraction, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "empty HTML input")
	}

	var parsed *url.URL
	if u, err := url.Parse(pageURL); err == nil {
		parsed = u
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		return nil, webquery.Errorf(webquery.EINTERNAL, "readability: %s", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return nil, webquery.Errorf(webquery.EINTERNAL, "readability found no main content")
	}

	markdown, err := e.conv.Convert(article.Content)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, webquery.Errorf(webquery.EINTERNAL, "readability extraction produced no content")
	}

	return &webquery.Extraction{
		Title:    article.Title,
		Markdown: markdown,
		Lang:     article.Language,
		Byline:   article.Byline,
		Excerpt:  article.Excerpt,
		Sections: webquery.ExtractSections(markdown),
		Method:   "readability",
	}, nil
}
