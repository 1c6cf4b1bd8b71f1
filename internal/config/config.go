package config

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GitHubConfig points the change-set client at a GitHub-compatible REST API.
type GitHubConfig struct {
	BaseURL   string `yaml:"baseURL"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeoutMs"`
	MaxPages  int    `yaml:"maxPages"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig selects the job store backend: redis, postgres or memory.
type StoreConfig struct {
	Driver    string `yaml:"driver"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// QueueConfig selects the job queue backend: redis or memory.
type QueueConfig struct {
	Driver string `yaml:"driver"`
	Key    string `yaml:"key"`
	Size   int    `yaml:"size"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
}

type WorkerConfig struct {
	MaxConcurrentJobs        int `yaml:"maxConcurrentJobs"`
	PollIntervalMs           int `yaml:"pollIntervalMs"`
	MaxConcurrentFilesPerJob int `yaml:"maxConcurrentFilesPerJob"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	TimeoutMs       int             `yaml:"timeoutMs"`
	MaxTokens       int             `yaml:"maxTokens"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

// RetentionConfig controls how long job statuses and results are kept
// so that the store does not grow without bound over time.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	JobTTLHours            int  `yaml:"jobTTLHours"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	GitHub    GitHubConfig    `yaml:"github"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Worker    WorkerConfig    `yaml:"worker"`
	LLM       LLMConfig       `yaml:"llm"`
	Retention RetentionConfig `yaml:"retention"`
}

// Load reads the config file at path and exits the process on failure.
func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return cfg
}

// Parse decodes YAML config from r, applies environment overrides for
// secrets and endpoints, and fills in defaults.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	set(&c.LLM.Google.APIKey, "GOOGLE_API_KEY")
	set(&c.GitHub.Token, "GITHUB_TOKEN")
	set(&c.Redis.URL, "REDIS_URL")
	set(&c.Database.DSN, "DATABASE_URL")
}

// ApplyDefaults fills zero values with the settings used in production.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = "https://api.github.com"
	}
	if c.GitHub.TimeoutMs <= 0 {
		c.GitHub.TimeoutMs = 30000
	}
	if c.GitHub.MaxPages <= 0 {
		c.GitHub.MaxPages = 30
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "redis"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "redis"
	}
	if c.Queue.Key == "" {
		c.Queue.Key = "prreview:queue"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 1024
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 4
	}
	if c.Worker.PollIntervalMs <= 0 {
		c.Worker.PollIntervalMs = 2000
	}
	if c.Worker.MaxConcurrentFilesPerJob <= 0 {
		c.Worker.MaxConcurrentFilesPerJob = 4
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	if c.LLM.TimeoutMs <= 0 {
		c.LLM.TimeoutMs = 60000
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o"
	}
	if c.Retention.CleanupIntervalMinutes <= 0 {
		c.Retention.CleanupIntervalMinutes = 60
	}
}

// Validate rejects driver combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "redis", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("store driver postgres requires database.dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q (expected redis|postgres|memory)", c.Store.Driver)
	}
	switch c.Queue.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown queue driver %q (expected redis|memory)", c.Queue.Driver)
	}
	return nil
}
