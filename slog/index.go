package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webquery"
)

// Ensure LoggingIndexService implements webquery.IndexService.
var _ webquery.IndexService = (*LoggingIndexService)(nil)

// LoggingIndexService wraps an IndexService with debug logging.
type LoggingIndexService struct {
	next   webquery.IndexService
	logger *slog.Logger
}

// NewLoggingIndexService creates a new LoggingIndexService.
func NewLoggingIndexService(next webquery.IndexService, logger *slog.Logger) *LoggingIndexService {
	return &LoggingIndexService{next: next, logger: logger}
}

// IndexChunks delegates to the wrapped service and logs the operation.
func (s *LoggingIndexService) IndexChunks(ctx context.Context, url string, chunks []*webquery.Chunk) (err error) {
	defer func(begin time.Time) {
		logWith(ctx, s.logger).Info("index chunks",
			"url", url,
			"count", len(chunks),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.IndexChunks(ctx, url, chunks)
}

// Search delegates to the wrapped service and logs the operation.
func (s *LoggingIndexService) Search(ctx context.Context, url string, query string, opts webquery.SearchOptions) (results []webquery.SearchResult, err error) {
	defer func(begin time.Time) {
		logWith(ctx, s.logger).Info("search",
			"url", url,
			"query", query,
			"results", len(results),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Search(ctx, url, query, opts)
}

// Close delegates to the wrapped service.
func (s *LoggingIndexService) Close() error {
	return s.next.Close()
}
