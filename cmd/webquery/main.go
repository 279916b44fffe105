package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/chunker"
	"github.com/fwojciec/webquery/gemini"
	wqgoquery "github.com/fwojciec/webquery/goquery"
	"github.com/fwojciec/webquery/htmltomarkdown"
	wqhttp "github.com/fwojciec/webquery/http"
	"github.com/fwojciec/webquery/ollama"
	"github.com/fwojciec/webquery/pipeline"
	"github.com/fwojciec/webquery/readability"
	"github.com/fwojciec/webquery/rod"
	wqslog "github.com/fwojciec/webquery/slog"
	"github.com/fwojciec/webquery/store"
	"github.com/fwojciec/webquery/trafilatura"
	"github.com/fwojciec/webquery/worker"
	"google.golang.org/genai"
)

func main() {
	ctx := context.Background()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// tokenizerModel is used for token counting when the gemini provider is
// active. It must be a model the local tokenizer has vocabularies for.
const tokenizerModel = "gemini-2.5-flash"

// Main represents the program.
type Main struct {
	// Config file path. Empty probes the default locations.
	ConfigPath string

	// Loaded configuration. Populated by Run.
	Config *Config

	// Store backing the storage services. Populated by Run for commands
	// that need it.
	Store *store.Store
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.Store != nil {
		return m.Store.Close(context.Background())
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Initialize dependencies struct for Kong binding
	deps := &Dependencies{
		Ctx:    ctx,
		Stdin:  os.Stdin,
		Stdout: stdout,
		Stderr: stderr,
	}

	// Create Kong parser with dependency binding
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("webquery"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	// Handle help flags using Kong
	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'webquery --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	// Parse arguments first to know which command and its flags
	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	// The store worker hosts the engine itself, so it must not open a
	// store of its own.
	if cmd == "store-worker" {
		return kongCtx.Run(deps)
	}

	cfg, err := LoadConfig(m.ConfigPath)
	if err != nil {
		return err
	}
	m.Config = cfg
	deps.Config = cfg

	logger, closeLogger, err := newLogger(cfg, cmd, stderr)
	if err != nil {
		return err
	}
	defer closeLogger()

	// Open the store
	storeCfg := store.Config{
		Path:           cfg.Store.Path,
		Mode:           worker.Mode(cfg.Store.WorkerMode),
		MaxConns:       cfg.Store.MaxConns,
		AcquireTimeout: time.Duration(cfg.Store.AcquireTimeout),
		IdleTimeout:    time.Duration(cfg.Store.IdleTimeout),
		InitTimeout:    time.Duration(cfg.Store.InitTimeout),
		OpTimeout:      time.Duration(cfg.Store.OpTimeout),
		RestartOnCrash: *cfg.Store.RestartOnCrash,
		Logger:         logger,
	}
	if storeCfg.Mode == worker.ModeProcess {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate the executable for the store worker: %w", err)
		}
		storeCfg.WorkerCommand = []string{exe, "store-worker", "--db", cfg.Store.Path}
	}

	st, err := store.Open(storeCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Hint: Set WEBQUERY_DB to use a different database path\n")
		return fmt.Errorf("failed to open store at %q: %w", cfg.Store.Path, err)
	}
	m.Store = st
	defer m.Close()

	// Wire core services into dependencies
	deps.Store = st
	deps.Documents = wqslog.NewLoggingDocumentService(st, logger)
	deps.Chunks = st

	// Wire the content pipeline for commands that crawl and search
	if cmd == "query" || cmd == "ask" || cmd == "serve" {
		var client *genai.Client
		if cfg.Embedding.Provider == "gemini" || cmd == "ask" {
			client, err = newGeminiClient(ctx, stderr)
			if err != nil {
				return err
			}
		}

		embedder, err := newEmbedder(cfg, client)
		if err != nil {
			return err
		}
		defer embedder.Close()

		index := wqslog.NewLoggingIndexService(store.NewIndex(st, embedder,
			store.WithEmbedBatchSize(cfg.Embedding.BatchSize),
			store.WithIndexLogger(logger),
		), logger)
		deps.Index = index

		baseFetcher, err := newFetcher(cfg, logger)
		if err != nil {
			return err
		}
		fetcher := wqslog.NewLoggingFetcher(baseFetcher, logger)
		defer fetcher.Close()

		deps.Pipeline = &pipeline.Pipeline{
			Fetcher:      fetcher,
			Extractor:    newExtractor(),
			Chunker:      newChunker(cfg, logger),
			Documents:    deps.Documents,
			Chunks:       st,
			Index:        index,
			ChunkOptions: cfg.ChunkOptions(),
			SearchLimit:  cfg.Search.Limit,
			MinScore:     cfg.Search.MinScore,
			Logger:       logger,
		}

		if cmd == "ask" {
			deps.Asker = gemini.NewAsker(client, index)
		}
	}

	return kongCtx.Run(deps)
}

// newLogger builds the process logger. The MCP transport owns stdout, so
// serve logs JSON to a file; every other command logs text to stderr.
func newLogger(cfg *Config, cmd string, stderr io.Writer) (*slog.Logger, func(), error) {
	level := parseLogLevel(cfg.Log.Level)

	if cmd == "serve" {
		f, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", cfg.Log.File, err)
		}
		logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		return logger, func() { _ = f.Close() }, nil
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return logger, func() {}, nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newGeminiClient authenticates against the Gemini API with GEMINI_API_KEY.
func newGeminiClient(ctx context.Context, stderr io.Writer) (*genai.Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(stderr, "GEMINI_API_KEY environment variable not set. Get an API key at https://aistudio.google.com/apikey")
		return nil, fmt.Errorf("GEMINI_API_KEY not set. Get a key at https://aistudio.google.com/apikey")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		fmt.Fprintln(stderr, "Hint: Check your GEMINI_API_KEY is valid")
		return nil, fmt.Errorf("failed to connect to Gemini API: %w", err)
	}
	return client, nil
}

// newEmbedder builds the configured embedding provider. The client is only
// consulted for the gemini provider.
func newEmbedder(cfg *Config, client *genai.Client) (webquery.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		var opts []ollama.Option
		if cfg.Embedding.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Embedding.Model))
		}
		if cfg.Embedding.Dimension > 0 {
			opts = append(opts, ollama.WithDimension(cfg.Embedding.Dimension))
		}
		if cfg.Embedding.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.Embedding.ServerURL))
		}
		return ollama.NewEmbedder(opts...)

	case "gemini":
		var opts []gemini.EmbedderOption
		if cfg.Embedding.Model != "" {
			opts = append(opts, gemini.WithEmbeddingModel(cfg.Embedding.Model))
		}
		if cfg.Embedding.Dimension > 0 {
			opts = append(opts, gemini.WithEmbeddingDimension(cfg.Embedding.Dimension))
		}
		return gemini.NewEmbedder(client, opts...), nil

	default:
		return nil, webquery.Errorf(webquery.EINVALID, "unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// newFetcher builds the configured fetcher. The browser renderer launches a
// headless Chrome; timeout, user agent, and rate limit settings apply to the
// plain HTTP renderer only.
func newFetcher(cfg *Config, logger *slog.Logger) (webquery.Fetcher, error) {
	if cfg.Fetch.Renderer == "browser" {
		return rod.NewFetcher()
	}

	opts := []wqhttp.Option{wqhttp.WithLogger(logger)}
	if cfg.Fetch.Timeout > 0 {
		opts = append(opts, wqhttp.WithTimeout(time.Duration(cfg.Fetch.Timeout)))
	}
	if cfg.Fetch.UserAgent != "" {
		opts = append(opts, wqhttp.WithUserAgent(cfg.Fetch.UserAgent))
	}
	if cfg.Fetch.RateLimit > 0 {
		opts = append(opts, wqhttp.WithRateLimit(cfg.Fetch.RateLimit))
	}
	return wqhttp.NewFetcher(opts...), nil
}

// newExtractor chains the extractors from most to least precise.
func newExtractor() webquery.Extractor {
	conv := htmltomarkdown.NewConverter()
	return webquery.ChainExtractors(
		trafilatura.NewExtractor(conv),
		readability.NewExtractor(conv),
		wqgoquery.NewExtractor(conv),
	)
}

// newChunker wires the Gemini tokenizer for exact token counts when the
// gemini provider is active. The byte-length estimate covers everything
// else, including a tokenizer that fails to load.
func newChunker(cfg *Config, logger *slog.Logger) webquery.Chunker {
	if cfg.Embedding.Provider == "gemini" {
		tc, err := gemini.NewTokenCounter(tokenizerModel)
		if err != nil {
			logger.Warn("token counter unavailable, estimating from text length", "error", err)
			return chunker.New()
		}
		return chunker.New(chunker.WithTokenCounter(tc))
	}
	return chunker.New()
}
