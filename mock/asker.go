package mock

import (
	"context"

	"github.com/fwojciec/webquery"
)

var _ webquery.Asker = (*Asker)(nil)

// Asker is a mock implementation of webquery.Asker.
type Asker struct {
	AskFn func(ctx context.Context, url string, question string) (string, error)
}

func (a *Asker) Ask(ctx context.Context, url string, question string) (string, error) {
	return a.AskFn(ctx, url, question)
}
