package webquery

import (
	"context"
	"time"
)

// Document represents crawl-level metadata for a fetched page. There is at
// most one row per normalized URL; chunks reference it by that URL.
type Document struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	ETag          string    `json:"etag,omitempty"`
	LastModified  string    `json:"lastModified,omitempty"`
	LastCrawledAt time.Time `json:"lastCrawledAt"`

	// ContentHash is a hash of the extracted text from the last crawl whose
	// chunks were fully indexed. It is empty when indexing was skipped or
	// failed, so the next crawl re-indexes.
	ContentHash string `json:"contentHash,omitempty"`
}

// Validate returns an error if the document contains invalid fields.
func (d *Document) Validate() error {
	if d.URL == "" {
		return Errorf(EINVALID, "document URL required")
	}
	return nil
}

// DocumentService represents a service for managing crawl metadata.
type DocumentService interface {
	// UpsertDocument creates or replaces the metadata row for doc.URL.
	UpsertDocument(ctx context.Context, doc *Document) error

	// FindDocumentByURL retrieves metadata for a normalized URL.
	// Returns ENOTFOUND if the URL has never been crawled.
	FindDocumentByURL(ctx context.Context, url string) (*Document, error)

	// ListDocuments retrieves all crawled documents, most recently
	// crawled first.
	ListDocuments(ctx context.Context) ([]*Document, error)

	// DeleteDocument removes the metadata row and all chunks for the URL
	// in a single transaction. Returns ENOTFOUND if the URL is unknown.
	DeleteDocument(ctx context.Context, url string) error
}
