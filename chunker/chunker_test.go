package chunker_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/chunker"
	"github.com/fwojciec/webquery/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://example.com/docs"

func chunkMarkdown(t *testing.T, markdown string, opts webquery.ChunkOptions) []*webquery.Chunk {
	t.Helper()

	chunks, err := chunker.New().Chunk(context.Background(), &webquery.Extraction{Markdown: markdown}, testURL, opts)
	require.NoError(t, err)
	return chunks
}

func TestChunker_Chunk(t *testing.T) {
	t.Parallel()

	t.Run("returns nothing for empty content", func(t *testing.T) {
		t.Parallel()

		chunks := chunkMarkdown(t, "", webquery.ChunkOptions{MaxTokens: 100})
		require.Empty(t, chunks)
	})

	t.Run("single paragraph becomes one chunk", func(t *testing.T) {
		t.Parallel()

		chunks := chunkMarkdown(t, "Just one short paragraph.", webquery.ChunkOptions{MaxTokens: 100})
		require.Len(t, chunks, 1)
		assert.Equal(t, testURL, chunks[0].URL)
		assert.Equal(t, "Just one short paragraph.", chunks[0].Text)
		assert.NotEmpty(t, chunks[0].ID)
		assert.Positive(t, chunks[0].TokenCount)
		assert.Zero(t, chunks[0].OverlapTokens)
		assert.Empty(t, chunks[0].SectionPath)
	})

	t.Run("splits at headings", func(t *testing.T) {
		t.Parallel()

		markdown := "# Install\n\nRun the installer.\n\n# Configure\n\nEdit the config file."
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 100})

		require.Len(t, chunks, 2)
		assert.Equal(t, []string{"Install"}, chunks[0].SectionPath)
		assert.Equal(t, "# Install\n\nRun the installer.", chunks[0].Text)
		assert.Equal(t, []string{"Configure"}, chunks[1].SectionPath)
		assert.Equal(t, "# Configure\n\nEdit the config file.", chunks[1].Text)
	})

	t.Run("tracks nested heading trails", func(t *testing.T) {
		t.Parallel()

		markdown := "# Guide\n\nIntro text.\n\n## Install\n\nInstall steps.\n\n## Usage\n\nUsage notes.\n\n# Reference\n\nAPI details."
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 100})

		require.Len(t, chunks, 4)
		assert.Equal(t, []string{"Guide"}, chunks[0].SectionPath)
		assert.Equal(t, []string{"Guide", "Install"}, chunks[1].SectionPath)
		assert.Equal(t, []string{"Guide", "Usage"}, chunks[2].SectionPath)
		assert.Equal(t, []string{"Reference"}, chunks[3].SectionPath)
	})

	t.Run("stacked headings attach to the following content", func(t *testing.T) {
		t.Parallel()

		markdown := "# Guide\n\n## Install\n\nInstall steps."
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 100})

		require.Len(t, chunks, 1)
		assert.Equal(t, []string{"Guide", "Install"}, chunks[0].SectionPath)
		assert.Equal(t, "# Guide\n\n## Install\n\nInstall steps.", chunks[0].Text)
	})

	t.Run("splits oversized sections by token budget", func(t *testing.T) {
		t.Parallel()

		// Three ~5-token paragraphs against a 10-token budget.
		markdown := "aaaa bbbb cccc dddd\n\neeee ffff gggg hhhh\n\niiii jjjj kkkk llll"
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 10})

		require.Len(t, chunks, 2)
		assert.Equal(t, "aaaa bbbb cccc dddd\n\neeee ffff gggg hhhh", chunks[0].Text)
		assert.Equal(t, "iiii jjjj kkkk llll", chunks[1].Text)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, chunk.TokenCount, 10)
		}
	})

	t.Run("carries overlap between size-based splits", func(t *testing.T) {
		t.Parallel()

		markdown := "aaaa bbbb cccc dddd\n\neeee ffff gggg hhhh\n\niiii jjjj kkkk llll"
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 10, OverlapPercent: 40})

		require.Len(t, chunks, 2)
		assert.Zero(t, chunks[0].OverlapTokens)
		assert.Positive(t, chunks[1].OverlapTokens)

		// The second chunk opens with the tail of the first.
		carried := strings.Split(chunks[1].Text, "\n\n")[0]
		assert.True(t, strings.HasSuffix(chunks[0].Text, carried),
			"chunk 1 should end with the overlap %q", carried)
	})

	t.Run("does not carry overlap across headings", func(t *testing.T) {
		t.Parallel()

		markdown := "# One\n\naaaa bbbb cccc dddd eeee ffff\n\n# Two\n\ngggg hhhh"
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 20, OverlapPercent: 40})

		require.Len(t, chunks, 2)
		assert.Zero(t, chunks[1].OverlapTokens)
		assert.Equal(t, "# Two\n\ngggg hhhh", chunks[1].Text)
	})

	t.Run("keeps fenced code blocks whole", func(t *testing.T) {
		t.Parallel()

		fence := "```go\nfunc main() {\n\trun()\n}\n```"
		markdown := "aaaa bbbb cccc dddd eeee ffff gggg hhhh\n\n" + fence + "\n\niiii jjjj kkkk llll mmmm nnnn oooo pppp"
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 20})

		require.Len(t, chunks, 2)
		assert.Contains(t, chunks[0].Text, fence)
		assert.Equal(t, 2, strings.Count(chunks[0].Text, "```"))
	})

	t.Run("splits oversized fences with markers preserved", func(t *testing.T) {
		t.Parallel()

		var lines []string
		for range 6 {
			lines = append(lines, "0123456789ab")
		}
		markdown := "```\n" + strings.Join(lines, "\n") + "\n```"
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 10})

		require.Greater(t, len(chunks), 1)
		total := 0
		for _, chunk := range chunks {
			assert.True(t, strings.HasPrefix(chunk.Text, "```\n"), "chunk should reopen the fence")
			assert.True(t, strings.HasSuffix(chunk.Text, "\n```"), "chunk should close the fence")
			total += strings.Count(chunk.Text, "0123456789ab")
		}
		assert.Equal(t, 6, total)
	})

	t.Run("splits an oversized paragraph by sentences", func(t *testing.T) {
		t.Parallel()

		markdown := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
		chunks := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 12})

		require.Greater(t, len(chunks), 1)
		var rejoined []string
		for _, chunk := range chunks {
			assert.LessOrEqual(t, chunk.TokenCount, 12)
			rejoined = append(rejoined, chunk.Text)
		}
		assert.Equal(t, markdown, strings.Join(rejoined, " "))
	})

	t.Run("produces stable content-derived IDs", func(t *testing.T) {
		t.Parallel()

		markdown := "# A\n\nSome text.\n\n# B\n\nSome text."
		first := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 100})
		second := chunkMarkdown(t, markdown, webquery.ChunkOptions{MaxTokens: 100})

		require.Len(t, first, 2)
		require.Len(t, second, 2)
		for i := range first {
			assert.Equal(t, first[i].ID, second[i].ID)
		}
		// Same text under different headings must not collide.
		assert.NotEqual(t, first[0].ID, first[1].ID)

		// A different URL yields different IDs.
		other, err := chunker.New().Chunk(context.Background(),
			&webquery.Extraction{Markdown: markdown}, "https://example.com/other", webquery.ChunkOptions{MaxTokens: 100})
		require.NoError(t, err)
		assert.NotEqual(t, first[0].ID, other[0].ID)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		c := chunker.New()
		ctx := context.Background()

		_, err := c.Chunk(ctx, nil, testURL, webquery.ChunkOptions{MaxTokens: 100})
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))

		_, err = c.Chunk(ctx, &webquery.Extraction{Markdown: "x"}, "", webquery.ChunkOptions{MaxTokens: 100})
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))

		_, err = c.Chunk(ctx, &webquery.Extraction{Markdown: "x"}, testURL, webquery.ChunkOptions{MaxTokens: -1})
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))

		_, err = c.Chunk(ctx, &webquery.Extraction{Markdown: "x"}, testURL, webquery.ChunkOptions{MaxTokens: 100, OverlapPercent: 60})
		require.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
	})

	t.Run("applies the default token budget", func(t *testing.T) {
		t.Parallel()

		chunks := chunkMarkdown(t, "Short text.", webquery.ChunkOptions{})
		require.Len(t, chunks, 1)
	})
}

func TestChunker_TokenCounter(t *testing.T) {
	t.Parallel()

	t.Run("uses the counter for budgets and counts", func(t *testing.T) {
		t.Parallel()

		counter := &mock.TokenCounter{
			CountTokensFn: func(ctx context.Context, text string) (int, error) {
				return len(strings.Fields(text)), nil
			},
		}
		c := chunker.New(chunker.WithTokenCounter(counter))

		chunks, err := c.Chunk(context.Background(),
			&webquery.Extraction{Markdown: "one two three"}, testURL, webquery.ChunkOptions{MaxTokens: 100})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		require.Equal(t, 3, chunks[0].TokenCount)
	})

	t.Run("propagates counter failures", func(t *testing.T) {
		t.Parallel()

		counter := &mock.TokenCounter{
			CountTokensFn: func(ctx context.Context, text string) (int, error) {
				return 0, errors.New("tokenizer unavailable")
			},
		}
		c := chunker.New(chunker.WithTokenCounter(counter))

		_, err := c.Chunk(context.Background(),
			&webquery.Extraction{Markdown: "some text"}, testURL, webquery.ChunkOptions{MaxTokens: 100})
		require.Error(t, err)
	})
}
