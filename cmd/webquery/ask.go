package main

import (
	"fmt"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/pipeline"
)

// Run executes the ask command.
func (c *AskCmd) Run(deps *Dependencies) error {
	// Crawl or revalidate first so the answer reflects the live page.
	result, err := deps.Pipeline.Run(deps.Ctx, &pipeline.Request{
		URL:          c.URL,
		ForceRefresh: c.Refresh,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}
	if result.Note != "" {
		fmt.Fprintf(deps.Stderr, "note: %s\n", result.Note)
	}

	answer, err := deps.Asker.Ask(deps.Ctx, result.URL, c.Question)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	fmt.Fprintln(deps.Stdout, answer)
	return nil
}
