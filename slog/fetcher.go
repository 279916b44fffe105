package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webquery"
)

// Ensure LoggingFetcher implements webquery.Fetcher.
var _ webquery.Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a Fetcher with debug logging.
type LoggingFetcher struct {
	next   webquery.Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next webquery.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch delegates to the wrapped fetcher and logs the outcome.
func (f *LoggingFetcher) Fetch(ctx context.Context, url string, cond *webquery.FetchCondition) (res *webquery.FetchResult, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", url,
			"conditional", cond != nil,
		}
		if res != nil {
			attrs = append(attrs,
				"status", res.StatusCode,
				"not_modified", res.NotModified,
				"bytes", len(res.HTML),
			)
		}
		attrs = append(attrs, "duration", time.Since(begin), "err", err)
		logWith(ctx, f.logger).Info("fetch", attrs...)
	}(time.Now())
	return f.next.Fetch(ctx, url, cond)
}

// Close delegates to the wrapped fetcher.
func (f *LoggingFetcher) Close() error {
	return f.next.Close()
}
