package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/webquery/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MustOpenEngine opens an engine for the given path and registers cleanup.
func MustOpenEngine(t *testing.T, path string) *sqlite.Engine {
	t.Helper()

	engine := sqlite.NewEngine(path)
	require.NoError(t, engine.Open(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, engine.Close())
	})
	return engine
}

func TestEngine_Open(t *testing.T) {
	t.Parallel()

	t.Run("creates schema on first open", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		ctx := context.Background()

		for _, table := range []string{"meta", "documents", "chunks"} {
			rows, err := engine.Query(ctx, "SELECT COUNT(*) AS n FROM "+table, nil)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.Equal(t, int64(0), rows[0]["n"])
		}
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		t.Parallel()

		engine := sqlite.NewEngine("/nonexistent/path/db.sqlite")
		err := engine.Open(context.Background())
		require.Error(t, err)
	})

	t.Run("enables WAL mode for file-based databases", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, t.TempDir()+"/test.db")

		rows, err := engine.Query(context.Background(), "PRAGMA journal_mode", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "wal", rows[0]["journal_mode"])
	})

	t.Run("is reopenable after close", func(t *testing.T) {
		t.Parallel()

		path := t.TempDir() + "/test.db"
		engine := sqlite.NewEngine(path)
		ctx := context.Background()

		require.NoError(t, engine.Open(ctx))
		_, err := engine.Exec(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", []any{"k", "v"})
		require.NoError(t, err)
		require.NoError(t, engine.Close())

		require.NoError(t, engine.Open(ctx))
		defer engine.Close()
		rows, err := engine.Query(ctx, "SELECT value FROM meta WHERE key = ?", []any{"k"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "v", rows[0]["value"])
	})
}

func TestEngine_Exec(t *testing.T) {
	t.Parallel()

	t.Run("reports rows affected", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		ctx := context.Background()

		res, err := engine.Exec(ctx, "INSERT INTO meta (key, value) VALUES (?, ?), (?, ?)",
			[]any{"a", "1", "b", "2"})
		require.NoError(t, err)
		require.Equal(t, int64(2), res.RowsAffected)

		res, err = engine.Exec(ctx, "DELETE FROM meta WHERE key = ?", []any{"missing"})
		require.NoError(t, err)
		require.Equal(t, int64(0), res.RowsAffected)
	})

	t.Run("binds time parameters as RFC3339 text", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		ctx := context.Background()

		crawled := time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)
		_, err := engine.Exec(ctx, "INSERT INTO documents (url, last_crawled) VALUES (?, ?)",
			[]any{"https://example.com/", crawled})
		require.NoError(t, err)

		rows, err := engine.Query(ctx, "SELECT last_crawled FROM documents", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "2025-04-12T09:30:00Z", rows[0]["last_crawled"])
	})
}

func TestEngine_Query(t *testing.T) {
	t.Parallel()

	t.Run("lowercases column keys", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")

		rows, err := engine.Query(context.Background(), "SELECT 1 AS Answer", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, int64(1), rows[0]["answer"])
	})

	t.Run("normalizes value types", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")

		rows, err := engine.Query(context.Background(),
			"SELECT 42 AS i, 1.5 AS f, 'hi' AS s, NULL AS missing, x'0102' AS b", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		assert.Equal(t, int64(42), rows[0]["i"])
		assert.Equal(t, 1.5, rows[0]["f"])
		assert.Equal(t, "hi", rows[0]["s"])
		assert.Nil(t, rows[0]["missing"])
		assert.Equal(t, []byte{0x01, 0x02}, rows[0]["b"])
	})

	t.Run("returns no rows for empty result", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")

		rows, err := engine.Query(context.Background(), "SELECT * FROM chunks", nil)
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func TestVectorDistance(t *testing.T) {
	t.Parallel()

	t.Run("identical vectors have zero distance", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		lit := sqlite.EmbeddingLiteral([]float32{0.1, 0.2, 0.3})

		rows, err := engine.Query(context.Background(),
			"SELECT vec_distance_cosine("+lit+", "+lit+") AS d", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.InDelta(t, 0.0, rows[0]["d"], 1e-6)
	})

	t.Run("orthogonal vectors have distance one", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		a := sqlite.EmbeddingLiteral([]float32{1, 0})
		b := sqlite.EmbeddingLiteral([]float32{0, 1})

		rows, err := engine.Query(context.Background(),
			"SELECT vec_distance_cosine("+a+", "+b+") AS d", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.InDelta(t, 1.0, rows[0]["d"], 1e-6)
	})

	t.Run("dimension mismatch fails", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		a := sqlite.EmbeddingLiteral([]float32{1, 0, 0})
		b := sqlite.EmbeddingLiteral([]float32{0, 1})

		_, err := engine.Query(context.Background(),
			"SELECT vec_distance_cosine("+a+", "+b+") AS d", nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "dimension mismatch")
	})

	t.Run("null argument yields null", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		lit := sqlite.EmbeddingLiteral([]float32{1, 0})

		rows, err := engine.Query(context.Background(),
			"SELECT vec_distance_cosine(NULL, "+lit+") AS d", nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Nil(t, rows[0]["d"])
	})

	t.Run("orders stored embeddings by similarity", func(t *testing.T) {
		t.Parallel()

		engine := MustOpenEngine(t, ":memory:")
		ctx := context.Background()

		vectors := map[string][]float32{
			"exact":   {1, 0, 0},
			"close":   {0.9, 0.1, 0},
			"distant": {0, 0, 1},
		}
		for id, vec := range vectors {
			_, err := engine.Exec(ctx,
				"INSERT INTO chunks (id, url, text, embedding, created_at, updated_at) VALUES (?, ?, ?, "+
					sqlite.EmbeddingLiteral(vec)+", ?, ?)",
				[]any{id, "https://example.com/", "text " + id, "2025-01-01T00:00:00Z", "2025-01-01T00:00:00Z"})
			require.NoError(t, err)
		}

		query := sqlite.EmbeddingLiteral([]float32{1, 0, 0})
		rows, err := engine.Query(ctx,
			"SELECT id FROM chunks ORDER BY vec_distance_cosine(embedding, "+query+") ASC", nil)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "exact", rows[0]["id"])
		assert.Equal(t, "close", rows[1]["id"])
		assert.Equal(t, "distant", rows[2]["id"])
	})
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	t.Parallel()

	t.Run("round trips", func(t *testing.T) {
		t.Parallel()

		vec := []float32{0.25, -1.5, 3.75, 0}
		decoded, err := sqlite.DecodeEmbedding(sqlite.EncodeEmbedding(vec))
		require.NoError(t, err)
		require.Equal(t, vec, decoded)
	})

	t.Run("encodes empty as nil", func(t *testing.T) {
		t.Parallel()

		require.Nil(t, sqlite.EncodeEmbedding(nil))

		decoded, err := sqlite.DecodeEmbedding(nil)
		require.NoError(t, err)
		require.Nil(t, decoded)
	})

	t.Run("rejects truncated blobs", func(t *testing.T) {
		t.Parallel()

		_, err := sqlite.DecodeEmbedding([]byte{1, 2, 3})
		require.Error(t, err)
	})
}
