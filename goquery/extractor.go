// Package goquery implements a selector-based last-resort extractor. It
// detects the documentation framework that generated a page and pulls the
// framework's content container directly, for pages where the
// boilerplate-removal extractors come up empty.
package goquery

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/webquery"
)

// junkSelectors match elements that never carry page content.
const junkSelectors = "script, style, noscript, iframe, svg, button, form"

// chromeSelectors match page chrome stripped from within the chosen
// content container.
const chromeSelectors = "nav, header, footer, aside"

// Ensure Extractor implements webquery.Extractor at compile time.
var _ webquery.Extractor = (*Extractor)(nil)

// Extractor pulls main content out of HTML by CSS selector. It trades the
// quality of real boilerplate removal for the guarantee of producing
// something on pages the other extractors reject.
type Extractor struct {
	conv     webquery.Converter
	detector *Detector
}

// NewExtractor creates a new Extractor. Extracted content is rendered to
// markdown with conv.
func NewExtractor(conv webquery.Converter) *Extractor {
	return &Extractor{
		conv:     conv,
		detector: NewDetector(),
	}
}

// Extract processes raw HTML and returns the main content.
func (e *Extractor) Extract(ctx context.Context, rawHTML string, pageURL string) (*webquery.Extraction, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "empty HTML input")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, webquery.Errorf(webquery.EINVALID, "failed to parse HTML: %s", err)
	}

	framework := e.detector.detect(doc)

	doc.Find(junkSelectors).Remove()

	content := e.findContent(doc, framework)
	if content == nil {
		return nil, webquery.Errorf(webquery.EINTERNAL, "no content container found")
	}
	content.Find(chromeSelectors).Remove()

	contentHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, webquery.Errorf(webquery.EINTERNAL, "failed to render content: %s", err)
	}

	markdown, err := e.conv.Convert(contentHTML)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, webquery.Errorf(webquery.EINTERNAL, "selector extraction produced no content")
	}

	return &webquery.Extraction{
		Title:    pageTitle(doc),
		Markdown: markdown,
		Lang:     doc.Find("html").AttrOr("lang", ""),
		Byline:   metaContent(doc, "meta[name='author']"),
		Excerpt:  pageExcerpt(doc),
		Sections: webquery.ExtractSections(markdown),
		Method:   "goquery",
	}, nil
}

// findContent returns the first non-empty match from the framework's
// selectors, falling back to the generic chain.
func (e *Extractor) findContent(doc *goquery.Document, framework Framework) *goquery.Selection {
	specific := contentSelectors[framework]
	selectors := make([]string, 0, len(specific)+len(genericSelectors))
	selectors = append(selectors, specific...)
	selectors = append(selectors, genericSelectors...)
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if strings.TrimSpace(sel.Text()) == "" {
			continue
		}
		return sel
	}
	return nil
}

// pageTitle prefers og:title over the title element, which usually carries
// a site-name suffix.
func pageTitle(doc *goquery.Document) string {
	if og := metaContent(doc, "meta[property='og:title']"); og != "" {
		return og
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func pageExcerpt(doc *goquery.Document) string {
	if desc := metaContent(doc, "meta[name='description']"); desc != "" {
		return desc
	}
	return metaContent(doc, "meta[property='og:description']")
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}
