// Package slog provides logging decorators for webquery services.
package slog

import (
	"context"
	"log/slog"

	"github.com/fwojciec/webquery"
)

// logWith attaches the request correlation ID carried by ctx, if any.
func logWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := webquery.RequestIDFromContext(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
