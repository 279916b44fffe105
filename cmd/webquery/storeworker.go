package main

import (
	"github.com/fwojciec/webquery/sqlite"
	"github.com/fwojciec/webquery/worker"
)

// Run executes the store-worker command. It serves the worker protocol on
// stdin/stdout until the parent closes the pipe.
func (c *StoreWorkerCmd) Run(deps *Dependencies) error {
	return worker.Serve(deps.Ctx, deps.Stdin, deps.Stdout, sqlite.NewEngine(c.DB))
}
