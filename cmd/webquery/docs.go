package main

import (
	"fmt"
	"strings"

	"github.com/fwojciec/webquery"
)

// Run executes the docs command.
func (c *DocsCmd) Run(deps *Dependencies) error {
	if c.URL != "" {
		return c.runOne(deps)
	}

	docs, err := deps.Documents.ListDocuments(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	if len(docs) == 0 {
		fmt.Fprintln(deps.Stdout, "No pages crawled yet. Use 'webquery query' to crawl one.")
		return nil
	}

	for _, doc := range docs {
		title := doc.Title
		if title == "" {
			title = doc.URL
		}
		fmt.Fprintf(deps.Stdout, "%s  %s\n    %s\n", doc.LastCrawledAt.Format("2006-01-02 15:04"), title, doc.URL)
	}

	return nil
}

// runOne prints the crawl details for a single page.
func (c *DocsCmd) runOne(deps *Dependencies) error {
	url, err := webquery.NormalizeURL(c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	doc, err := deps.Documents.FindDocumentByURL(deps.Ctx, url)
	if err != nil {
		if webquery.ErrorCode(err) == webquery.ENOTFOUND {
			fmt.Fprintf(deps.Stderr, "error: page %q has not been crawled. Use 'webquery docs' to see crawled pages.\n", url)
		} else {
			fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		}
		return err
	}

	chunks, err := deps.Chunks.ChunksByURL(deps.Ctx, url)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	title := doc.Title
	if title == "" {
		title = doc.URL
	}
	fmt.Fprintf(deps.Stdout, "%s\n%s\n", title, doc.URL)
	fmt.Fprintf(deps.Stdout, "last crawled %s, %d chunks\n", doc.LastCrawledAt.Format("2006-01-02 15:04"), len(chunks))
	if doc.ETag != "" {
		fmt.Fprintf(deps.Stdout, "etag %s\n", doc.ETag)
	}
	if doc.LastModified != "" {
		fmt.Fprintf(deps.Stdout, "last modified %s\n", doc.LastModified)
	}
	if doc.ContentHash == "" {
		fmt.Fprintln(deps.Stdout, "indexing incomplete; the next query re-crawls the page")
	}

	if c.Chunks {
		for i, chunk := range chunks {
			section := strings.Join(chunk.SectionPath, " > ")
			if section == "" {
				section = "(no section)"
			}
			fmt.Fprintf(deps.Stdout, "\n%d. %s (%d tokens)\n   %s\n", i+1, section, chunk.TokenCount, chunk.ID)
		}
	}

	return nil
}
