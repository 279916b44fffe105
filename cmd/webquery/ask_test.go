package main_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/fwojciec/webquery"
	main "github.com/fwojciec/webquery/cmd/webquery"
	"github.com/fwojciec/webquery/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("crawls and prints the answer", func(t *testing.T) {
		t.Parallel()

		var askedURL, askedQuestion string
		asker := &mock.Asker{
			AskFn: func(_ context.Context, url string, question string) (string, error) {
				askedURL = url
				askedQuestion = question
				return "Run the installer from the downloads page.", nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:      context.Background(),
			Stdout:   stdout,
			Stderr:   &bytes.Buffer{},
			Pipeline: newTestPipeline(),
			Asker:    asker,
		}

		// The raw URL is un-normalized on purpose; the asker must get
		// the canonical form the index rows use.
		cmd := &main.AskCmd{URL: "HTTPS://EXAMPLE.COM/docs#install", Question: "how do I install?"}

		err := cmd.Run(deps)

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/docs", askedURL)
		assert.Equal(t, "how do I install?", askedQuestion)
		assert.Contains(t, stdout.String(), "Run the installer from the downloads page.")
	})

	t.Run("surfaces crawl notes on stderr", func(t *testing.T) {
		t.Parallel()

		p := newTestPipeline()
		p.Index = &mock.IndexService{
			IndexChunksFn: func(_ context.Context, _ string, _ []*webquery.Chunk) error {
				return webquery.Errorf(webquery.EUNAVAILABLE, "embedding provider down")
			},
		}

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:      context.Background(),
			Stdout:   &bytes.Buffer{},
			Stderr:   stderr,
			Pipeline: p,
			Asker: &mock.Asker{
				AskFn: func(_ context.Context, _ string, _ string) (string, error) {
					return "an answer", nil
				},
			},
		}

		cmd := &main.AskCmd{URL: "https://example.com/docs", Question: "how?"}

		err := cmd.Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stderr.String(), "note: semantic indexing unavailable")
	})

	t.Run("returns crawl errors", func(t *testing.T) {
		t.Parallel()

		p := newTestPipeline()
		p.Fetcher = &mock.Fetcher{
			FetchFn: func(_ context.Context, url string, _ *webquery.FetchCondition) (*webquery.FetchResult, error) {
				return nil, webquery.Errorf(webquery.ENOTFOUND, "page not found: %s", url)
			},
		}

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:      context.Background(),
			Stdout:   &bytes.Buffer{},
			Stderr:   stderr,
			Pipeline: p,
			Asker:    &mock.Asker{},
		}

		cmd := &main.AskCmd{URL: "https://example.com/docs", Question: "how?"}

		err := cmd.Run(deps)

		require.Error(t, err)
		assert.Equal(t, webquery.ENOTFOUND, webquery.ErrorCode(err))
		assert.Contains(t, stderr.String(), "error: page not found")
	})

	t.Run("returns asker errors", func(t *testing.T) {
		t.Parallel()

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:      context.Background(),
			Stdout:   &bytes.Buffer{},
			Stderr:   stderr,
			Pipeline: newTestPipeline(),
			Asker: &mock.Asker{
				AskFn: func(_ context.Context, url string, _ string) (string, error) {
					return "", webquery.Errorf(webquery.ENOTFOUND, "no indexed content for %q", url)
				},
			},
		}

		cmd := &main.AskCmd{URL: "https://example.com/docs", Question: "how?"}

		err := cmd.Run(deps)

		require.Error(t, err)
		assert.Contains(t, stderr.String(), "error: no indexed content")
	})
}
