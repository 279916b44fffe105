package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webquery"
)

// Ensure LoggingDocumentService implements webquery.DocumentService.
var _ webquery.DocumentService = (*LoggingDocumentService)(nil)

// LoggingDocumentService wraps a DocumentService with debug logging.
type LoggingDocumentService struct {
	next   webquery.DocumentService
	logger *slog.Logger
}

// NewLoggingDocumentService creates a new LoggingDocumentService.
func NewLoggingDocumentService(next webquery.DocumentService, logger *slog.Logger) *LoggingDocumentService {
	return &LoggingDocumentService{next: next, logger: logger}
}

// UpsertDocument delegates to the wrapped service and logs the operation.
func (s *LoggingDocumentService) UpsertDocument(ctx context.Context, doc *webquery.Document) (err error) {
	defer func(begin time.Time) {
		logWith(ctx, s.logger).Info("upsert document",
			"url", doc.URL,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.UpsertDocument(ctx, doc)
}

// FindDocumentByURL delegates to the wrapped service and logs the operation.
func (s *LoggingDocumentService) FindDocumentByURL(ctx context.Context, url string) (doc *webquery.Document, err error) {
	defer func(begin time.Time) {
		logWith(ctx, s.logger).Info("find document",
			"url", url,
			"found", doc != nil,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.FindDocumentByURL(ctx, url)
}

// ListDocuments delegates to the wrapped service and logs the operation.
func (s *LoggingDocumentService) ListDocuments(ctx context.Context) (docs []*webquery.Document, err error) {
	defer func(begin time.Time) {
		logWith(ctx, s.logger).Info("list documents",
			"count", len(docs),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.ListDocuments(ctx)
}

// DeleteDocument delegates to the wrapped service and logs the operation.
func (s *LoggingDocumentService) DeleteDocument(ctx context.Context, url string) (err error) {
	defer func(begin time.Time) {
		logWith(ctx, s.logger).Info("delete document",
			"url", url,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.DeleteDocument(ctx, url)
}
