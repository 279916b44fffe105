package main_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fwojciec/webquery"
	main "github.com/fwojciec/webquery/cmd/webquery"
	"github.com/fwojciec/webquery/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocsCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("lists crawled pages", func(t *testing.T) {
		t.Parallel()

		documents := &mock.DocumentService{
			ListDocumentsFn: func(_ context.Context) ([]*webquery.Document, error) {
				return []*webquery.Document{
					{
						URL:           "https://example.com/docs",
						Title:         "Tool Docs",
						LastCrawledAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
					},
					{
						URL:           "https://example.com/blog",
						LastCrawledAt: time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC),
					},
				}, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    &bytes.Buffer{},
			Documents: documents,
		}

		err := (&main.DocsCmd{}).Run(deps)

		require.NoError(t, err)
		out := stdout.String()
		assert.Contains(t, out, "2026-03-14 09:30  Tool Docs")
		assert.Contains(t, out, "https://example.com/docs")
		// Untitled pages fall back to the URL.
		assert.Contains(t, out, "2026-03-13 18:00  https://example.com/blog")
	})

	t.Run("suggests a crawl when the store is empty", func(t *testing.T) {
		t.Parallel()

		documents := &mock.DocumentService{
			ListDocumentsFn: func(_ context.Context) ([]*webquery.Document, error) {
				return nil, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    &bytes.Buffer{},
			Documents: documents,
		}

		err := (&main.DocsCmd{}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "No pages crawled yet")
	})

	t.Run("shows details for one page", func(t *testing.T) {
		t.Parallel()

		documents := &mock.DocumentService{
			FindDocumentByURLFn: func(_ context.Context, url string) (*webquery.Document, error) {
				return &webquery.Document{
					URL:           url,
					Title:         "Tool Docs",
					ETag:          `"v1"`,
					LastCrawledAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
					ContentHash:   "abc123",
				}, nil
			},
		}
		chunks := &mock.ChunkService{
			ChunksByURLFn: func(_ context.Context, url string) ([]*webquery.Chunk, error) {
				return []*webquery.Chunk{
					{ID: "c1", URL: url, SectionPath: []string{"Guide", "Install"}, Text: "a", TokenCount: 120},
					{ID: "c2", URL: url, Text: "b", TokenCount: 80},
				}, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    &bytes.Buffer{},
			Documents: documents,
			Chunks:    chunks,
		}

		err := (&main.DocsCmd{URL: "https://example.com/docs", Chunks: true}).Run(deps)

		require.NoError(t, err)
		out := stdout.String()
		assert.Contains(t, out, "Tool Docs")
		assert.Contains(t, out, "last crawled 2026-03-14 09:30, 2 chunks")
		assert.Contains(t, out, `etag "v1"`)
		assert.Contains(t, out, "1. Guide > Install (120 tokens)")
		assert.Contains(t, out, "2. (no section) (80 tokens)")
		assert.NotContains(t, out, "indexing incomplete")
	})

	t.Run("flags an unfinished index", func(t *testing.T) {
		t.Parallel()

		documents := &mock.DocumentService{
			FindDocumentByURLFn: func(_ context.Context, url string) (*webquery.Document, error) {
				return &webquery.Document{
					URL:           url,
					Title:         "Tool Docs",
					LastCrawledAt: time.Now(),
				}, nil
			},
		}
		chunks := &mock.ChunkService{
			ChunksByURLFn: func(_ context.Context, _ string) ([]*webquery.Chunk, error) {
				return nil, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    &bytes.Buffer{},
			Documents: documents,
			Chunks:    chunks,
		}

		err := (&main.DocsCmd{URL: "https://example.com/docs"}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "indexing incomplete")
	})

	t.Run("reports an uncrawled page", func(t *testing.T) {
		t.Parallel()

		documents := &mock.DocumentService{
			FindDocumentByURLFn: func(_ context.Context, url string) (*webquery.Document, error) {
				return nil, webquery.Errorf(webquery.ENOTFOUND, "document %q not found", url)
			},
		}

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    &bytes.Buffer{},
			Stderr:    stderr,
			Documents: documents,
		}

		err := (&main.DocsCmd{URL: "https://example.com/docs"}).Run(deps)

		require.Error(t, err)
		assert.Equal(t, webquery.ENOTFOUND, webquery.ErrorCode(err))
		assert.Contains(t, stderr.String(), "has not been crawled")
	})

	t.Run("rejects an invalid URL", func(t *testing.T) {
		t.Parallel()

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:    context.Background(),
			Stdout: &bytes.Buffer{},
			Stderr: stderr,
		}

		err := (&main.DocsCmd{URL: "ftp://example.com/docs"}).Run(deps)

		require.Error(t, err)
		assert.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
		assert.Contains(t, stderr.String(), "error:")
	})
}
