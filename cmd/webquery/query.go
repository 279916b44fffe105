package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/pipeline"
)

// Run executes the query command.
func (c *QueryCmd) Run(deps *Dependencies) error {
	result, err := deps.Pipeline.Run(deps.Ctx, &pipeline.Request{
		URL:            c.URL,
		Queries:        c.Queries,
		ForceRefresh:   c.Refresh,
		IncludeContent: c.Content,
		Limit:          c.Limit,
		MinScore:       c.MinScore,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(deps.Stdout, result)
	return nil
}

// printResult renders a pipeline result for terminal reading.
func printResult(w io.Writer, result *pipeline.Result) {
	title := result.Title
	if title == "" {
		title = result.URL
	}
	source := "fresh crawl"
	if result.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "%s\n%s (%s, %d chunks)\n", title, result.URL, source, result.ChunkCount)
	if result.Note != "" {
		fmt.Fprintf(w, "note: %s\n", result.Note)
	}

	for _, q := range result.Queries {
		fmt.Fprintf(w, "\n# %s\n\n", q.Query)
		switch {
		case q.Note != "":
			fmt.Fprintf(w, "note: %s\n", q.Note)
		case len(q.Results) == 0:
			fmt.Fprintln(w, "no matches")
		default:
			fmt.Fprintln(w, webquery.FormatSearchResults(result.URL, q.Results))
		}
	}

	// Without queries the outline still tells the reader what is on the
	// page.
	if len(result.Queries) == 0 && len(result.Sections) > 0 {
		fmt.Fprintf(w, "\n%s\n", webquery.FormatOutline(result.Sections))
	}

	if result.Content != "" {
		fmt.Fprintf(w, "\n%s\n", result.Content)
	}
}
