package main

import (
	"context"
	"io"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/pipeline"
	"github.com/fwojciec/webquery/store"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Config    *Config
	Store     *store.Store
	Documents webquery.DocumentService
	Chunks    webquery.ChunkService
	Index     webquery.IndexService
	Pipeline  *pipeline.Pipeline
	Asker     webquery.Asker
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Serve       ServeCmd       `cmd:"" help:"Run the MCP server on stdio"`
	Query       QueryCmd       `cmd:"" help:"Fetch a page and answer queries against its content"`
	Ask         AskCmd         `cmd:"" help:"Ask a question about a page and synthesize an answer"`
	Docs        DocsCmd        `cmd:"" help:"List crawled pages"`
	Delete      DeleteCmd      `cmd:"" help:"Delete a crawled page and its chunks"`
	ResetConfig ResetConfigCmd `cmd:"" help:"Clear the stored embedding configuration"`
	StoreWorker StoreWorkerCmd `cmd:"" hidden:"" help:"Host the store engine for the process worker mode"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct{}

// QueryCmd is the "query" subcommand.
type QueryCmd struct {
	URL      string   `arg:"" help:"Page URL"`
	Queries  []string `arg:"" optional:"" help:"Natural-language queries against the page"`
	Refresh  bool     `short:"r" help:"Re-crawl even when the cached copy is fresh"`
	Content  bool     `short:"c" help:"Include the full extracted content"`
	Limit    int      `short:"n" help:"Maximum results per query"`
	MinScore float64  `help:"Drop results scoring below this threshold (0-1)"`
	JSON     bool     `help:"Print the result as JSON"`
}

// AskCmd is the "ask" subcommand.
type AskCmd struct {
	URL      string `arg:"" help:"Page URL"`
	Question string `arg:"" help:"Question to ask about the page"`
	Refresh  bool   `short:"r" help:"Re-crawl even when the cached copy is fresh"`
}

// DocsCmd is the "docs" subcommand.
type DocsCmd struct {
	URL    string `arg:"" optional:"" help:"Show details for one page"`
	Chunks bool   `help:"List the stored chunks for the page"`
}

// DeleteCmd is the "delete" subcommand.
type DeleteCmd struct {
	URL   string `arg:"" help:"Page URL"`
	Force bool   `help:"Confirm deletion"`
}

// ResetConfigCmd is the "reset-config" subcommand.
type ResetConfigCmd struct {
	Force bool `help:"Confirm the reset"`
}

// StoreWorkerCmd is the hidden "store-worker" subcommand. The process
// worker mode spawns it as a child with the protocol on stdin/stdout.
type StoreWorkerCmd struct {
	DB string `name:"db" required:"" help:"SQLite database path"`
}
