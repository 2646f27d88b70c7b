package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	// DSN is the privileged connection string for the shared record
	// store. The worker bypasses row-level access rules.
	DSN string `yaml:"dsn"`
}

type EmbeddingsConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
}

type CrawlerConfig struct {
	UserAgent      string `yaml:"userAgent"`
	FetchTimeoutMs int    `yaml:"fetchTimeoutMs"`
	PageDelayMs    int    `yaml:"pageDelayMs"`
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
}

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Crawler    CrawlerConfig    `yaml:"crawler"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// Load reads the YAML config at path, applies environment overrides,
// and fills defaults. A missing file is not an error when the
// environment provides the required values.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v, err := strconv.Atoi(os.Getenv("WORKER_MAX_CONCURRENT_JOBS")); err == nil && v > 0 {
		c.Worker.MaxConcurrentJobs = v
	}
	if v, err := strconv.Atoi(os.Getenv("WORKER_POLL_INTERVAL_MS")); err == nil && v > 0 {
		c.Worker.PollIntervalMs = v
	}
}

func (c *Config) applyDefaults() {
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "pagegraph-worker/1.0"
	}
	if c.Crawler.FetchTimeoutMs <= 0 {
		c.Crawler.FetchTimeoutMs = 30000
	}
	if c.Crawler.PageDelayMs <= 0 {
		c.Crawler.PageDelayMs = 1000
	}
	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 3
	}
	if c.Worker.PollIntervalMs <= 0 {
		c.Worker.PollIntervalMs = 60000
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
}

// Validate reports the first fatal configuration problem. The worker
// refuses to start without a store DSN and an embeddings credential.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or set DATABASE_URL)")
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings.baseURL is required (or set EMBEDDINGS_BASE_URL)")
	}
	if c.Embeddings.APIKey == "" {
		return fmt.Errorf("embeddings.apiKey is required (or set EMBEDDINGS_API_KEY)")
	}
	return nil
}
