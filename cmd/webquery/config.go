package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/chunker"
	"github.com/fwojciec/webquery/store"
	"github.com/fwojciec/webquery/worker"
	"gopkg.in/yaml.v3"
)

// Config holds the file-backed settings for the webquery CLI. Every field
// has a default, so running without a config file works.
type Config struct {
	Store struct {
		Path           string   `yaml:"path"`
		WorkerMode     string   `yaml:"worker_mode"`
		MaxConns       int      `yaml:"max_conns"`
		AcquireTimeout Duration `yaml:"acquire_timeout"`
		IdleTimeout    Duration `yaml:"idle_timeout"`
		InitTimeout    Duration `yaml:"init_timeout"`
		OpTimeout      Duration `yaml:"op_timeout"`
		RestartOnCrash *bool    `yaml:"restart_on_crash"`
	} `yaml:"store"`

	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
		BatchSize int    `yaml:"batch_size"`
		ServerURL string `yaml:"server_url"`
	} `yaml:"embedding"`

	Fetch struct {
		// Renderer selects the fetcher: "http" for plain requests,
		// "browser" for headless Chrome rendering of script-heavy pages.
		Renderer  string   `yaml:"renderer"`
		Timeout   Duration `yaml:"timeout"`
		UserAgent string   `yaml:"user_agent"`
		RateLimit float64  `yaml:"rate_limit"`
	} `yaml:"fetch"`

	Chunk struct {
		MaxTokens      int  `yaml:"max_tokens"`
		OverlapPercent *int `yaml:"overlap_percent"`
	} `yaml:"chunk"`

	Search struct {
		Limit    int     `yaml:"limit"`
		MinScore float64 `yaml:"min_score"`
	} `yaml:"search"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return webquery.Errorf(webquery.EINVALID, "invalid duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// LoadConfig reads the config file at path. An empty path probes
// WEBQUERY_CONFIG, ./webquery.yaml, and ~/.webquery/config.yaml in that
// order; when none exists the defaults are returned. Environment variables
// override file values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			os.Getenv("WEBQUERY_CONFIG"),
			"webquery.yaml",
		}
		if home, err := os.UserHomeDir(); err == nil {
			locations = append(locations, filepath.Join(home, ".webquery", "config.yaml"))
		}
		for _, loc := range locations {
			if loc == "" {
				continue
			}
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, webquery.Errorf(webquery.EINVALID, "read config %s: %s", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, webquery.Errorf(webquery.EINVALID, "parse config %s: %s", path, err)
		}
	}

	mergeEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeEnv overrides file values with environment variables.
func mergeEnv(cfg *Config) {
	if path := os.Getenv("WEBQUERY_DB"); path != "" {
		cfg.Store.Path = path
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Embedding.ServerURL = host
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultDBPath()
	}
	if cfg.Store.WorkerMode == "" {
		cfg.Store.WorkerMode = string(worker.ModeGoroutine)
	}
	if cfg.Store.RestartOnCrash == nil {
		restart := true
		cfg.Store.RestartOnCrash = &restart
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}

	if cfg.Fetch.Renderer == "" {
		cfg.Fetch.Renderer = "http"
	}

	if cfg.Chunk.MaxTokens == 0 {
		cfg.Chunk.MaxTokens = chunker.DefaultMaxTokens
	}
	if cfg.Chunk.OverlapPercent == nil {
		overlap := chunker.DefaultOverlapPercent
		cfg.Chunk.OverlapPercent = &overlap
	}

	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = store.DefaultSearchLimit
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogPath()
	}
}

// Validate returns an error if the configuration contains invalid values.
func (c *Config) Validate() error {
	if _, err := worker.ParseMode(c.Store.WorkerMode); err != nil {
		return err
	}
	if c.Embedding.Provider != "gemini" && c.Embedding.Provider != "ollama" {
		return webquery.Errorf(webquery.EINVALID, "unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Fetch.Renderer != "http" && c.Fetch.Renderer != "browser" {
		return webquery.Errorf(webquery.EINVALID, "unknown fetch renderer %q", c.Fetch.Renderer)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return webquery.Errorf(webquery.EINVALID, "search min_score must be between 0 and 1")
	}
	opts := webquery.ChunkOptions{MaxTokens: c.Chunk.MaxTokens, OverlapPercent: *c.Chunk.OverlapPercent}
	return opts.Validate()
}

// ChunkOptions converts the chunking settings for the pipeline.
func (c *Config) ChunkOptions() webquery.ChunkOptions {
	return webquery.ChunkOptions{
		MaxTokens:      c.Chunk.MaxTokens,
		OverlapPercent: *c.Chunk.OverlapPercent,
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "webquery.db"
	}
	dir := filepath.Join(home, ".webquery")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "webquery.db")
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "webquery.log"
	}
	dir := filepath.Join(home, ".webquery")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "webquery.log")
}
