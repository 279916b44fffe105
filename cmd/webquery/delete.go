package main

import (
	"fmt"

	"github.com/fwojciec/webquery"
)

// Run executes the delete command.
func (c *DeleteCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm deletion\n")
		return webquery.Errorf(webquery.EINVALID, "use --force to confirm deletion")
	}

	url, err := webquery.NormalizeURL(c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		return err
	}

	if err := deps.Documents.DeleteDocument(deps.Ctx, url); err != nil {
		if webquery.ErrorCode(err) == webquery.ENOTFOUND {
			fmt.Fprintf(deps.Stderr, "error: page %q has not been crawled. Use 'webquery docs' to see crawled pages.\n", url)
		} else {
			fmt.Fprintf(deps.Stderr, "error: %s\n", webquery.ErrorMessage(err))
		}
		return err
	}

	fmt.Fprintf(deps.Stdout, "Deleted page %q and its chunks\n", url)
	return nil
}
