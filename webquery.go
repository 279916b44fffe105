// Package webquery provides a retrieval-backed web page query service.
// Given a URL and a set of natural language queries it fetches the page,
// extracts the main content as markdown, chunks and embeds it into a
// persistent vector index, and answers the queries by similarity search.
// Re-crawls are cheap: conditional requests and content hashing skip the
// extract/embed work when a page has not changed.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, gemini/, trafilatura/).
package webquery

import "context"

type contextKey int

const requestIDKey contextKey = 1

// NewContextWithRequestID returns a context carrying a request correlation ID.
// The ID is attached to log lines emitted while serving the request.
func NewContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request correlation ID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
