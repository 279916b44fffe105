package main

import (
	"fmt"

	"github.com/fwojciec/webquery"
)

// Run executes the reset-config command.
func (c *ResetConfigCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm the reset\n")
		return webquery.Errorf(webquery.EINVALID, "use --force to confirm the reset")
	}

	model, dim, err := deps.Store.EmbeddingConfig(deps.Ctx)
	if err != nil && webquery.ErrorCode(err) != webquery.ENOTFOUND {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	if err := deps.Store.ResetEmbeddingConfig(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	if model != "" {
		fmt.Fprintf(deps.Stdout, "Cleared embedding configuration (was %s, %d dimensions)\n", model, dim)
	} else {
		fmt.Fprintln(deps.Stdout, "No embedding configuration was stored")
	}
	fmt.Fprintln(deps.Stdout, "Existing chunks keep their old vectors; re-crawl pages to re-embed them.")
	return nil
}
