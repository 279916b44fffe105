package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.DocumentService = (*DocumentService)(nil)

// DocumentService is a mock implementation of webquery.DocumentService.
type DocumentService struct {
	UpsertDocumentFn    func(ctx context.Context, doc *webquery.Document) error
	FindDocumentByURLFn func(ctx context.Context, url string) (*webquery.Document, error)
	ListDocumentsFn     func(ctx context.Context) ([]*webquery.Document, error)
	DeleteDocumentFn    func(ctx context.Context, url string) error
}

func (s *DocumentService) UpsertDocument(ctx context.Context, doc *webquery.Document) error {
	return s.UpsertDocumentFn(ctx, doc)
}

func (s *DocumentService) FindDocumentByURL(ctx context.Context, url string) (*webquery.Document, error) {
	return s.FindDocumentByURLFn(ctx, url)
}

func (s *DocumentService) ListDocuments(ctx context.Context) ([]*webquery.Document, error) {
	return s.ListDocumentsFn(ctx)
}

func (s *DocumentService) DeleteDocument(ctx context.Context, url string) error {
	return s.DeleteDocumentFn(ctx, url)
}
