package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/sqlite"
	"github.com/fwojciec/webquery/worker"
)

// Compile-time interface verification.
var (
	_ webquery.DocumentService = (*Store)(nil)
	_ webquery.ChunkService    = (*Store)(nil)
)

// upsertBatchSize bounds chunks per multi-row statement to stay well under
// the engine's bound-parameter ceiling.
const upsertBatchSize = 100

// Meta keys for the persisted embedding configuration.
const (
	metaEmbeddingModel     = "embedding_model"
	metaEmbeddingDimension = "embedding_dim"
)

// sectionPathSeparator joins heading trails for storage.
const sectionPathSeparator = " > "

// Config configures Open.
type Config struct {
	// Path is the SQLite database path, or ":memory:".
	Path string

	// Mode selects the worker transport. Defaults to worker.ModeGoroutine.
	Mode worker.Mode

	// WorkerCommand spawns the child for worker.ModeProcess.
	WorkerCommand []string

	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	InitTimeout    time.Duration
	OpTimeout      time.Duration

	// RestartOnCrash respawns a crashed worker on the next call.
	RestartOnCrash bool

	Logger *slog.Logger
}

// Store is the persistent vector store: crawl metadata, chunks with their
// embeddings, and the embedding configuration that guards them.
type Store struct {
	pool   *Pool
	client *worker.Client
}

// NewStore creates a Store over an existing pool. Most callers should use
// Open instead.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Open builds the worker client for the configured mode and wraps it in a
// bounded connection pool. The logical connections multiplex the single
// worker endpoint; the pool bounds and queues concurrent access to it.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "store path required")
	}

	var opts []worker.Option
	if cfg.Logger != nil {
		opts = append(opts, worker.WithLogger(cfg.Logger))
	}
	if cfg.InitTimeout > 0 {
		opts = append(opts, worker.WithInitTimeout(cfg.InitTimeout))
	}
	if cfg.OpTimeout > 0 {
		opts = append(opts, worker.WithOperationTimeout(cfg.OpTimeout))
	}
	opts = append(opts, worker.WithRestartOnCrash(cfg.RestartOnCrash))

	var client *worker.Client
	var err error
	if cfg.Mode == worker.ModeProcess {
		client, err = worker.NewProcess(cfg.WorkerCommand, opts...)
	} else {
		mode := cfg.Mode
		if mode == "" {
			mode = worker.ModeGoroutine
		}
		client, err = worker.New(sqlite.NewEngine(cfg.Path), mode, opts...)
	}
	if err != nil {
		return nil, err
	}

	pool := NewPool(func(ctx context.Context) (RawConn, error) {
		return workerConn{client: client}, nil
	}, PoolConfig{
		MaxConns:       cfg.MaxConns,
		AcquireTimeout: cfg.AcquireTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		Logger:         cfg.Logger,
	})

	s := NewStore(pool)
	s.client = client
	return s, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Close closes the pool and shuts down the worker. It is idempotent.
func (s *Store) Close(ctx context.Context) error {
	err := s.pool.Close()
	if s.client != nil {
		if cerr := s.client.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// workerConn adapts the shared worker client to the pool's RawConn. The
// worker hosts a single engine, so opening a logical connection is free
// and closing one releases nothing.
type workerConn struct {
	client *worker.Client
}

func (c workerConn) Exec(ctx context.Context, statement string, params ...any) (worker.Result, error) {
	return c.client.Exec(ctx, statement, params...)
}

func (c workerConn) Query(ctx context.Context, statement string, params ...any) ([]worker.Row, error) {
	return c.client.Query(ctx, statement, params...)
}

func (c workerConn) Close() error {
	return nil
}

// EnsureEmbeddingConfig verifies the persisted embedding configuration
// against model and dim, establishing it on first use. A store indexed
// under a different model or dimension returns ECONFLICT before any write;
// mixing embedding spaces would make every similarity score meaningless.
func (s *Store) EnsureEmbeddingConfig(ctx context.Context, model string, dim int) error {
	if model == "" {
		return webquery.Errorf(webquery.EINVALID, "embedding model required")
	}
	if dim <= 0 {
		return webquery.Errorf(webquery.EINVALID, "embedding dimension must be positive")
	}

	return s.pool.InTransaction(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, "SELECT key, value FROM meta WHERE key IN (?, ?)",
			metaEmbeddingModel, metaEmbeddingDimension)
		if err != nil {
			return err
		}

		var haveModel, haveDim string
		for _, row := range rows {
			switch rowString(row, "key") {
			case metaEmbeddingModel:
				haveModel = rowString(row, "value")
			case metaEmbeddingDimension:
				haveDim = rowString(row, "value")
			}
		}

		if haveModel == "" && haveDim == "" {
			_, err := conn.Exec(ctx, "INSERT INTO meta (key, value) VALUES (?, ?), (?, ?)",
				metaEmbeddingModel, model, metaEmbeddingDimension, strconv.Itoa(dim))
			return err
		}
		if haveModel != model {
			return webquery.Errorf(webquery.ECONFLICT,
				"store is indexed with embedding model %q, not %q; reset the embedding config or use a separate store", haveModel, model)
		}
		if haveDim != strconv.Itoa(dim) {
			return webquery.Errorf(webquery.ECONFLICT,
				"store is indexed with embedding dimension %s, not %d; reset the embedding config or use a separate store", haveDim, dim)
		}
		return nil
	})
}

// EmbeddingConfig retrieves the persisted embedding model and dimension.
// Returns ENOTFOUND if no configuration has been established yet.
func (s *Store) EmbeddingConfig(ctx context.Context) (model string, dim int, err error) {
	err = s.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, "SELECT key, value FROM meta WHERE key IN (?, ?)",
			metaEmbeddingModel, metaEmbeddingDimension)
		if err != nil {
			return err
		}
		for _, row := range rows {
			switch rowString(row, "key") {
			case metaEmbeddingModel:
				model = rowString(row, "value")
			case metaEmbeddingDimension:
				dim, _ = strconv.Atoi(rowString(row, "value"))
			}
		}
		if model == "" || dim == 0 {
			return webquery.Errorf(webquery.ENOTFOUND, "no embedding configuration stored")
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return model, dim, nil
}

// ResetEmbeddingConfig removes the persisted embedding configuration. This
// is the only way to admit a different model or dimension later; stored
// chunks keep their old embeddings until their URLs are re-indexed.
func (s *Store) ResetEmbeddingConfig(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(conn *Conn) error {
		_, err := conn.Exec(ctx, "DELETE FROM meta WHERE key IN (?, ?)",
			metaEmbeddingModel, metaEmbeddingDimension)
		return err
	})
}

// UpsertDocument creates or replaces the crawl metadata row for doc.URL.
func (s *Store) UpsertDocument(ctx context.Context, doc *webquery.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.LastCrawledAt.IsZero() {
		doc.LastCrawledAt = time.Now().UTC()
	}

	return s.pool.WithConn(ctx, func(conn *Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO documents (url, title, etag, last_modified, last_crawled, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				title = excluded.title,
				etag = excluded.etag,
				last_modified = excluded.last_modified,
				last_crawled = excluded.last_crawled,
				content_hash = excluded.content_hash
		`, doc.URL, doc.Title, doc.ETag, doc.LastModified,
			doc.LastCrawledAt.UTC().Format(time.RFC3339), doc.ContentHash)
		return err
	})
}

// FindDocumentByURL retrieves crawl metadata for a normalized URL.
func (s *Store) FindDocumentByURL(ctx context.Context, url string) (*webquery.Document, error) {
	if url == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "document URL required")
	}

	var doc *webquery.Document
	err := s.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT url, title, etag, last_modified, last_crawled, content_hash
			FROM documents
			WHERE url = ?
		`, url)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return webquery.Errorf(webquery.ENOTFOUND, "document not found")
		}
		doc, err = scanDocument(rows[0])
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments retrieves all crawled documents, most recently crawled
// first.
func (s *Store) ListDocuments(ctx context.Context) ([]*webquery.Document, error) {
	var docs []*webquery.Document
	err := s.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT url, title, etag, last_modified, last_crawled, content_hash
			FROM documents
			ORDER BY last_crawled DESC
		`)
		if err != nil {
			return err
		}
		for _, row := range rows {
			doc, err := scanDocument(row)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes the metadata row and all chunks for the URL in a
// single transaction.
func (s *Store) DeleteDocument(ctx context.Context, url string) error {
	if url == "" {
		return webquery.Errorf(webquery.EINVALID, "document URL required")
	}

	return s.pool.InTransaction(ctx, func(conn *Conn) error {
		if _, err := conn.Exec(ctx, "DELETE FROM chunks WHERE url = ?", url); err != nil {
			return err
		}
		res, err := conn.Exec(ctx, "DELETE FROM documents WHERE url = ?", url)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return webquery.Errorf(webquery.ENOTFOUND, "document not found")
		}
		return nil
	})
}

// UpsertChunks inserts or replaces chunks in batches inside one
// transaction. Existing rows keep their created_at so document order
// survives re-crawls.
func (s *Store) UpsertChunks(ctx context.Context, chunks []*webquery.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := validateChunks(chunks, ""); err != nil {
		return err
	}

	return s.pool.InTransaction(ctx, func(conn *Conn) error {
		return upsertChunkBatches(ctx, conn, chunks)
	})
}

// ReplaceChunks atomically replaces the stored chunk set for a URL.
// Re-crawled pages are replaced wholesale; diffing stale chunk sets
// against fresh extractions is not worth the bookkeeping.
func (s *Store) ReplaceChunks(ctx context.Context, url string, chunks []*webquery.Chunk) error {
	if url == "" {
		return webquery.Errorf(webquery.EINVALID, "chunk URL required")
	}
	if err := validateChunks(chunks, url); err != nil {
		return err
	}

	return s.pool.InTransaction(ctx, func(conn *Conn) error {
		if _, err := conn.Exec(ctx, "DELETE FROM chunks WHERE url = ?", url); err != nil {
			return err
		}
		return upsertChunkBatches(ctx, conn, chunks)
	})
}

func validateChunks(chunks []*webquery.Chunk, url string) error {
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return err
		}
		if len(chunk.Embedding) == 0 {
			return webquery.Errorf(webquery.EINVALID, "chunk %q has no embedding", chunk.ID)
		}
		if url != "" && chunk.URL != url {
			return webquery.Errorf(webquery.EINVALID, "chunk %q belongs to %q, not %q", chunk.ID, chunk.URL, url)
		}
	}
	return nil
}

// upsertChunkBatches writes chunks in bounded multi-row statements on the
// caller's transaction connection.
func upsertChunkBatches(ctx context.Context, conn *Conn, chunks []*webquery.Chunk) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		stmt, params := buildChunkUpsert(chunks[start:end], now)
		if _, err := conn.Exec(ctx, stmt, params...); err != nil {
			return err
		}
	}
	return nil
}

// buildChunkUpsert renders one multi-row upsert. Embeddings are inlined as
// blob literals; everything else is bound.
func buildChunkUpsert(chunks []*webquery.Chunk, now string) (string, []any) {
	var stmt strings.Builder
	stmt.WriteString("INSERT INTO chunks (id, url, section_path, text, tokens, embedding, created_at, updated_at) VALUES ")

	params := make([]any, 0, len(chunks)*7)
	for i, chunk := range chunks {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteString("(?, ?, ?, ?, ?, ")
		stmt.WriteString(sqlite.EmbeddingLiteral(chunk.Embedding))
		stmt.WriteString(", ?, ?)")
		params = append(params,
			chunk.ID, chunk.URL, strings.Join(chunk.SectionPath, sectionPathSeparator),
			chunk.Text, chunk.TokenCount, now, now)
	}

	stmt.WriteString(`
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			section_path = excluded.section_path,
			text = excluded.text,
			tokens = excluded.tokens,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`)

	return stmt.String(), params
}

// SimilaritySearch returns up to limit chunks for the URL nearest to the
// query embedding, best first. Score is 1 - cosine distance. The embedding
// must match the expected dimension dim.
func (s *Store) SimilaritySearch(ctx context.Context, url string, embedding []float32, limit, dim int) ([]webquery.SearchResult, error) {
	if url == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "search URL required")
	}
	if limit <= 0 {
		return nil, webquery.Errorf(webquery.EINVALID, "search limit must be positive")
	}
	if len(embedding) != dim {
		return nil, webquery.Errorf(webquery.EINVALID, "query embedding has dimension %d, store expects %d", len(embedding), dim)
	}

	stmt := fmt.Sprintf(`
		SELECT id, text, section_path, 1.0 - vec_distance_cosine(embedding, %s) AS score
		FROM chunks
		WHERE url = ?
		ORDER BY score DESC
		LIMIT ?`, sqlite.EmbeddingLiteral(embedding))

	var results []webquery.SearchResult
	err := s.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, stmt, url, limit)
		if err != nil {
			return err
		}
		results = make([]webquery.SearchResult, 0, len(rows))
		for _, row := range rows {
			results = append(results, webquery.SearchResult{
				ID:          rowString(row, "id"),
				Text:        rowString(row, "text"),
				SectionPath: splitSectionPath(rowString(row, "section_path")),
				Score:       rowFloat(row, "score"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ChunksByURL retrieves all chunks for a URL in creation order, embeddings
// included.
func (s *Store) ChunksByURL(ctx context.Context, url string) ([]*webquery.Chunk, error) {
	if url == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "chunk URL required")
	}

	var chunks []*webquery.Chunk
	err := s.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, url, section_path, text, tokens, embedding
			FROM chunks
			WHERE url = ?
			ORDER BY created_at ASC, rowid ASC
		`, url)
		if err != nil {
			return err
		}
		for _, row := range rows {
			embedding, err := sqlite.DecodeEmbedding(rowBlob(row, "embedding"))
			if err != nil {
				return webquery.Errorf(webquery.EINTERNAL, "stored embedding for chunk %q is corrupt: %s", rowString(row, "id"), err)
			}
			chunks = append(chunks, &webquery.Chunk{
				ID:          rowString(row, "id"),
				URL:         rowString(row, "url"),
				SectionPath: splitSectionPath(rowString(row, "section_path")),
				Text:        rowString(row, "text"),
				TokenCount:  rowInt(row, "tokens"),
				Embedding:   embedding,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunk permanently removes a chunk.
func (s *Store) DeleteChunk(ctx context.Context, id string) error {
	if id == "" {
		return webquery.Errorf(webquery.EINVALID, "chunk ID required")
	}

	return s.pool.WithConn(ctx, func(conn *Conn) error {
		res, err := conn.Exec(ctx, "DELETE FROM chunks WHERE id = ?", id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return webquery.Errorf(webquery.ENOTFOUND, "chunk not found")
		}
		return nil
	})
}

// DeleteChunksByURL removes all chunks for a URL. Removing zero rows is
// not an error.
func (s *Store) DeleteChunksByURL(ctx context.Context, url string) error {
	if url == "" {
		return webquery.Errorf(webquery.EINVALID, "chunk URL required")
	}

	return s.pool.WithConn(ctx, func(conn *Conn) error {
		_, err := conn.Exec(ctx, "DELETE FROM chunks WHERE url = ?", url)
		return err
	})
}

func scanDocument(row worker.Row) (*webquery.Document, error) {
	doc := &webquery.Document{
		URL:          rowString(row, "url"),
		Title:        rowString(row, "title"),
		ETag:         rowString(row, "etag"),
		LastModified: rowString(row, "last_modified"),
		ContentHash:  rowString(row, "content_hash"),
	}
	crawled, err := time.Parse(time.RFC3339, rowString(row, "last_crawled"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_crawled: %w", err)
	}
	doc.LastCrawledAt = crawled
	return doc, nil
}

func splitSectionPath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sectionPathSeparator)
}

// Row value accessors tolerant of the worker transports' numeric shapes.

func rowString(row worker.Row, key string) string {
	s, _ := row[key].(string)
	return s
}

func rowInt(row worker.Row, key string) int {
	switch v := row[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func rowFloat(row worker.Row, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func rowBlob(row worker.Row, key string) []byte {
	b, _ := row[key].([]byte)
	return b
}
