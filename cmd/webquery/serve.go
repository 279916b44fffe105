package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// serverVersion is reported to MCP clients during initialization.
const serverVersion = "0.1.0"

// Run executes the serve command.
func (c *ServeCmd) Run(deps *Dependencies) error {
	return server.ServeStdio(NewMCPServer(deps))
}

// NewMCPServer assembles the MCP server exposing the query_page and
// read_page tools.
func NewMCPServer(deps *Dependencies) *server.MCPServer {
	srv := server.NewMCPServer("webquery", serverVersion, server.WithToolCapabilities(false))

	queryPage := mcp.NewTool("query_page",
		mcp.WithDescription("Fetch a web page and answer natural-language queries against its content using semantic search. Pages are cached; a repeat call re-crawls only when the page changed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL of the page to query"),
		),
		mcp.WithArray("queries",
			mcp.Required(),
			mcp.Description("Natural-language queries to answer against the page"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("force_refresh",
			mcp.Description("Re-crawl even when the cached copy is fresh"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results per query"),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Drop results scoring below this threshold (0-1)"),
		),
	)
	srv.AddTool(queryPage, QueryPageHandler(deps))

	readPage := mcp.NewTool("read_page",
		mcp.WithDescription("Fetch a web page and return its content as markdown. Pages are cached; a repeat call re-crawls only when the page changed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL of the page to read"),
		),
		mcp.WithBoolean("force_refresh",
			mcp.Description("Re-crawl even when the cached copy is fresh"),
		),
	)
	srv.AddTool(readPage, ReadPageHandler(deps))

	return srv
}

// queryPageArgs mirrors the query_page tool schema.
type queryPageArgs struct {
	URL          string   `json:"url"`
	Queries      []string `json:"queries"`
	ForceRefresh bool     `json:"force_refresh"`
	Limit        int      `json:"limit"`
	MinScore     float64  `json:"min_score"`
}

// QueryPageHandler answers the query_page tool with the pipeline result as
// JSON text. Pipeline errors become tool errors rather than protocol
// errors, so the model can read them and adjust.
func QueryPageHandler(deps *Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args queryPageArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := deps.Pipeline.Run(ctx, &pipeline.Request{
			URL:          args.URL,
			Queries:      args.Queries,
			ForceRefresh: args.ForceRefresh,
			Limit:        args.Limit,
			MinScore:     args.MinScore,
		})
		if err != nil {
			return mcp.NewToolResultError(webquery.ErrorMessage(err)), nil
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

// readPageArgs mirrors the read_page tool schema.
type readPageArgs struct {
	URL          string `json:"url"`
	ForceRefresh bool   `json:"force_refresh"`
}

// ReadPageHandler answers the read_page tool with the page markdown.
func ReadPageHandler(deps *Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args readPageArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := deps.Pipeline.Run(ctx, &pipeline.Request{
			URL:            args.URL,
			ForceRefresh:   args.ForceRefresh,
			IncludeContent: true,
		})
		if err != nil {
			return mcp.NewToolResultError(webquery.ErrorMessage(err)), nil
		}

		text := result.Content
		if result.Note != "" {
			text = fmt.Sprintf("note: %s\n\n%s", result.Note, text)
		}
		return mcp.NewToolResultText(text), nil
	}
}
