// Package pipeline coordinates the read path for a page query: cache-checked
// fetching, content extraction, chunking, indexing, and per-query search.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/webquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// searchConcurrency caps concurrent per-query searches.
const searchConcurrency = 4

// Pipeline coordinates fetching, extraction, chunking, indexing, and search
// for a single page request. One crawl pass serves any number of queries.
type Pipeline struct {
	Fetcher   webquery.Fetcher
	Extractor webquery.Extractor
	Chunker   webquery.Chunker
	Documents webquery.DocumentService
	Chunks    webquery.ChunkService
	Index     webquery.IndexService

	// ChunkOptions sizes the chunks produced from fresh content.
	ChunkOptions webquery.ChunkOptions

	// SearchLimit caps results per query when the request does not set one.
	SearchLimit int

	// MinScore drops results scoring below it when the request does not
	// set one.
	MinScore float64

	Logger *slog.Logger
}

// Request describes one page query operation.
type Request struct {
	// URL of the page to fetch and query.
	URL string

	// Queries to answer against the page content.
	Queries []string

	// ForceRefresh re-crawls even when stored validators are fresh.
	ForceRefresh bool

	// IncludeContent returns the full extracted markdown in the result.
	IncludeContent bool

	// Limit overrides the pipeline's SearchLimit when positive.
	Limit int

	// MinScore overrides the pipeline's MinScore when positive.
	MinScore float64
}

// QueryResult holds the matches for one query string, best match first.
type QueryResult struct {
	Query   string                  `json:"query"`
	Results []webquery.SearchResult `json:"results"`

	// Note reports a per-query degradation, e.g. a failed search.
	Note string `json:"note,omitempty"`
}

// Result is the outcome of a pipeline run.
type Result struct {
	RequestID  string             `json:"requestId"`
	URL        string             `json:"url"`
	Title      string             `json:"title"`
	Method     string             `json:"method,omitempty"`
	Cached     bool               `json:"cached"`
	ChunkCount int                `json:"chunkCount"`
	Sections   []webquery.Section `json:"sections,omitempty"`
	Content    string             `json:"content,omitempty"`
	Queries    []QueryResult      `json:"queries,omitempty"`

	// Note reports a request-level degradation. The request still
	// succeeded; semantic results may be missing or stale.
	Note string `json:"note,omitempty"`
}

// Run executes the pipeline for one request. Failures before any content is
// obtained are returned as errors; later failures degrade the result and
// attach a note instead.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Result, error) {
	url, err := webquery.NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx = webquery.NewContextWithRequestID(ctx, requestID)
	logger := p.logger().With("request_id", requestID, "url", url)

	// A prior crawl's validators make the fetch conditional. An empty
	// content hash means the last crawl never finished indexing, so the
	// page is reprocessed even if unchanged.
	var doc *webquery.Document
	if found, err := p.Documents.FindDocumentByURL(ctx, url); err == nil {
		doc = found
	} else if webquery.ErrorCode(err) != webquery.ENOTFOUND {
		return nil, err
	}

	var cond *webquery.FetchCondition
	if doc != nil && !req.ForceRefresh && doc.ContentHash != "" && (doc.ETag != "" || doc.LastModified != "") {
		cond = &webquery.FetchCondition{ETag: doc.ETag, LastModified: doc.LastModified}
	}

	fetched, err := p.Fetcher.Fetch(ctx, url, cond)
	if err != nil {
		return nil, err
	}

	if fetched.NotModified {
		if doc == nil {
			return nil, webquery.Errorf(webquery.EUNAVAILABLE, "server returned not-modified for an unconditional fetch of %q", url)
		}
		return p.runCached(ctx, logger, req, requestID, url, doc, fetched)
	}

	return p.runFresh(ctx, logger, req, requestID, url, doc, fetched)
}

// runCached serves a not-modified response from stored chunks. Extraction
// and chunking are skipped; searches still run fresh per query.
func (p *Pipeline) runCached(ctx context.Context, logger *slog.Logger, req *Request, requestID, url string, doc *webquery.Document, fetched *webquery.FetchResult) (*Result, error) {
	chunks, err := p.Chunks.ChunksByURL(ctx, url)
	if err != nil {
		return nil, err
	}

	doc.LastCrawledAt = time.Now().UTC()
	if fetched.ETag != "" {
		doc.ETag = fetched.ETag
	}
	if fetched.LastModified != "" {
		doc.LastModified = fetched.LastModified
	}
	if err := p.Documents.UpsertDocument(ctx, doc); err != nil {
		logger.Warn("touching cached document failed", "err", err)
	}

	content := AssembleContent(chunks)

	result := &Result{
		RequestID:  requestID,
		URL:        url,
		Title:      doc.Title,
		Cached:     true,
		ChunkCount: len(chunks),
		Sections:   webquery.ExtractSections(content),
	}
	if req.IncludeContent {
		result.Content = content
	}
	result.Queries = p.runSearches(ctx, url, req)

	logger.Info("served from cache", "chunks", len(chunks), "queries", len(req.Queries))
	return result, nil
}

// runFresh extracts, chunks, and indexes newly fetched content. Chunking and
// indexing failures degrade the result rather than failing the request.
func (p *Pipeline) runFresh(ctx context.Context, logger *slog.Logger, req *Request, requestID, url string, doc *webquery.Document, fetched *webquery.FetchResult) (*Result, error) {
	ex, err := p.Extractor.Extract(ctx, fetched.HTML, url)
	if err != nil {
		return nil, err
	}

	// Servers that send no validators (and rendered fetches, which cannot
	// replay them) still get cache behavior: when the extracted content
	// hashes to the stored value the index is already current.
	if doc != nil && !req.ForceRefresh && doc.ContentHash != "" && doc.ContentHash == ContentHash(ex.Markdown) {
		result, err := p.runUnchanged(ctx, logger, req, requestID, url, doc, ex, fetched)
		if err == nil {
			return result, nil
		}
		logger.Warn("stored chunks unavailable, reprocessing", "err", err)
	}

	result := &Result{
		RequestID: requestID,
		URL:       url,
		Title:     ex.Title,
		Method:    ex.Method,
		Sections:  ex.Sections,
		Note:      ex.Note,
	}
	if req.IncludeContent {
		result.Content = ex.Markdown
	}

	chunks, err := p.Chunker.Chunk(ctx, ex, url, p.ChunkOptions)
	if err != nil {
		chunks = nil
		result.addNote("content chunking failed: " + webquery.ErrorMessage(err))
		logger.Warn("chunking failed", "err", err)
	} else if len(chunks) == 0 {
		result.addNote("page produced no indexable content")
	}
	result.ChunkCount = len(chunks)

	indexed := false
	if len(chunks) > 0 {
		if err := p.Index.IndexChunks(ctx, url, chunks); err != nil {
			result.addNote("semantic indexing unavailable: " + webquery.ErrorMessage(err))
			logger.Warn("indexing failed", "chunks", len(chunks), "err", err)
		} else {
			indexed = true
		}
	}

	doc = &webquery.Document{
		URL:           url,
		Title:         ex.Title,
		ETag:          fetched.ETag,
		LastModified:  fetched.LastModified,
		LastCrawledAt: time.Now().UTC(),
	}
	if indexed {
		// Recorded only after a fully indexed crawl, so a degraded run
		// is retried in full next time.
		doc.ContentHash = ContentHash(ex.Markdown)
	}
	if err := p.Documents.UpsertDocument(ctx, doc); err != nil {
		result.addNote("crawl metadata update failed: " + webquery.ErrorMessage(err))
		logger.Warn("document upsert failed", "err", err)
	}

	if indexed {
		result.Queries = p.runSearches(ctx, url, req)
	} else {
		result.Queries = skippedSearches(req.Queries)
	}

	logger.Info("crawled", "method", ex.Method, "chunks", len(chunks), "indexed", indexed, "queries", len(req.Queries))
	return result, nil
}

// runUnchanged handles a re-fetch whose extracted content hashes to the
// stored value: chunking and re-embedding are skipped, document metadata is
// refreshed, and searches run against the stored index.
func (p *Pipeline) runUnchanged(ctx context.Context, logger *slog.Logger, req *Request, requestID, url string, doc *webquery.Document, ex *webquery.Extraction, fetched *webquery.FetchResult) (*Result, error) {
	chunks, err := p.Chunks.ChunksByURL(ctx, url)
	if err != nil {
		return nil, err
	}

	doc.Title = ex.Title
	doc.LastCrawledAt = time.Now().UTC()
	if fetched.ETag != "" {
		doc.ETag = fetched.ETag
	}
	if fetched.LastModified != "" {
		doc.LastModified = fetched.LastModified
	}
	if err := p.Documents.UpsertDocument(ctx, doc); err != nil {
		logger.Warn("touching cached document failed", "err", err)
	}

	result := &Result{
		RequestID:  requestID,
		URL:        url,
		Title:      ex.Title,
		Method:     ex.Method,
		Cached:     true,
		ChunkCount: len(chunks),
		Sections:   ex.Sections,
		Note:       ex.Note,
	}
	if req.IncludeContent {
		result.Content = ex.Markdown
	}
	result.Queries = p.runSearches(ctx, url, req)

	logger.Info("content unchanged", "chunks", len(chunks), "queries", len(req.Queries))
	return result, nil
}

// runSearches answers every query concurrently. A failed search degrades
// its own query only.
func (p *Pipeline) runSearches(ctx context.Context, url string, req *Request) []QueryResult {
	if len(req.Queries) == 0 {
		return nil
	}

	opts := webquery.SearchOptions{Limit: p.SearchLimit, MinScore: p.MinScore}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.MinScore > 0 {
		opts.MinScore = req.MinScore
	}

	out := make([]QueryResult, len(req.Queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for i, query := range req.Queries {
		g.Go(func() error {
			results, err := p.Index.Search(gctx, url, query, opts)
			if err != nil {
				out[i] = QueryResult{Query: query, Note: "search failed: " + webquery.ErrorMessage(err)}
				return nil
			}
			out[i] = QueryResult{Query: query, Results: results}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// skippedSearches produces empty per-query rows when indexing did not
// happen; the request-level note explains why.
func skippedSearches(queries []string) []QueryResult {
	if len(queries) == 0 {
		return nil
	}
	out := make([]QueryResult, len(queries))
	for i, query := range queries {
		out[i] = QueryResult{Query: query}
	}
	return out
}

func (r *Result) addNote(note string) {
	if r.Note == "" {
		r.Note = note
		return
	}
	r.Note += "; " + note
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// AssembleContent reconstructs page markdown from stored chunks, dropping
// the overlap each chunk carries from its predecessor.
func AssembleContent(chunks []*webquery.Chunk) string {
	var sb strings.Builder
	var prev string
	for _, chunk := range chunks {
		text := chunk.Text
		if prev != "" {
			text = stripOverlap(prev, text)
		}
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
		prev = chunk.Text
	}
	return sb.String()
}

// stripOverlap removes the longest prefix of next that repeats a suffix of
// prev. Carried overlap is always followed by a paragraph break, so only
// prefixes ending at one (or spanning all of next) are candidates.
func stripOverlap(prev, next string) string {
	limit := min(len(prev), len(next))
	for n := limit; n > 0; n-- {
		if n != len(next) && !strings.HasPrefix(next[n:], "\n\n") {
			continue
		}
		if prev[len(prev)-n:] == next[:n] {
			return strings.TrimPrefix(next[n:], "\n\n")
		}
	}
	return next
}

// ContentHash fingerprints extracted markdown so an unchanged page can be
// recognized across crawls even when the server sends no validators.
func ContentHash(content string) string {
	return fmt.Sprintf("%x", xxhash.Sum64String(content))
}
