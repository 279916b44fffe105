// Package trafilatura provides the primary content extractor, wrapping
// go-trafilatura's boilerplate removal with a markdown conversion step.
package trafilatura

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/fwojciec/webquery"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

// Ensure Extractor implements webquery.Extractor at compile time.
var _ webquery.Extractor = (*Extractor)(nil)

// Extractor wraps go-trafilatura to extract main content from HTML.
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

	opts := trafilatura.Options{
		EnableFallback: true,
	}
	if parsed, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = parsed
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil {
		return nil, webquery.Errorf(webquery.EINTERNAL, "trafilatura: %s", err)
	}
	if result.ContentNode == nil {
		return nil, webquery.Errorf(webquery.EINTERNAL, "trafilatura found no main content")
	}

	contentHTML, err := renderNode(result.ContentNode)
	if err != nil {
		return nil, err
	}

	markdown, err := e.conv.Convert(contentHTML)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, webquery.Errorf(webquery.EINTERNAL, "trafilatura extraction produced no content")
	}

	return &webquery.Extraction{
		Title:    result.Metadata.Title,
		Markdown: markdown,
		Lang:     result.Metadata.Language,
		Byline:   result.Metadata.Author,
		Excerpt:  result.Metadata.Description,
		Sections: webquery.ExtractSections(markdown),
		Method:   "trafilatura",
	}, nil
}

// renderNode converts an html.Node to a string.
func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
