package ollama_test

import (
	"context"
	"testing"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ webquery.Embedder = (*ollama.Embedder)(nil)

func TestEmbedder_Defaults(t *testing.T) {
	t.Parallel()

	embedder, err := ollama.NewEmbedder()
	require.NoError(t, err)

	assert.Equal(t, ollama.DefaultModel, embedder.ModelName())
	assert.Equal(t, ollama.DefaultDimension, embedder.Dimension())
	assert.NoError(t, embedder.Close())
}

func TestEmbedder_Options(t *testing.T) {
	t.Parallel()

	embedder, err := ollama.NewEmbedder(
		ollama.WithModel("mxbai-embed-large"),
		ollama.WithDimension(1024),
		ollama.WithServerURL("http://ollama.internal:11434"),
	)
	require.NoError(t, err)

	assert.Equal(t, "mxbai-embed-large", embedder.ModelName())
	assert.Equal(t, 1024, embedder.Dimension())
}

func TestEmbedder_EmbedEmptyInput(t *testing.T) {
	t.Parallel()

	embedder, err := ollama.NewEmbedder()
	require.NoError(t, err)

	vectors, err := embedder.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vectors)
}
