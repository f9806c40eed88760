// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/0xcro3dile/ragtutor/internal/domain/usecases"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

type Config struct {
	Port     int
	LogLevel string
	APIKey   string

	// Model
	ModelProvider    string
	GeminiAPIKey     string
	GeminiModel      string
	OllamaBaseURL    string
	OllamaModel      string
	ModelTemperature float64
	ModelTimeout     time.Duration

	// Web tools
	SearchTimeout    time.Duration
	FirecrawlAPIKey  string
	FirecrawlBaseURL string
	CrawlTimeout     time.Duration

	// Agent
	AgentPreset string

	// Knowledge
	KnowledgeDBPath      string
	KnowledgeDir         string
	KnowledgeWebCapacity int
}

// LoadDotEnv reads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment. Malformed numbers and
// durations are reported rather than replaced by their defaults.
func Load() (*Config, error) {
	var env envReader
	cfg := &Config{
		Port:                 env.Int("PORT", 8080),
		LogLevel:             strings.ToLower(envStr("LOG_LEVEL", "info")),
		APIKey:               envStr("API_KEY", ""),
		ModelProvider:        strings.ToLower(envStr("MODEL_PROVIDER", ProviderGemini)),
		GeminiAPIKey:         envStr("GEMINI_API_KEY", envStr("GOOGLE_API_KEY", "")),
		GeminiModel:          envStr("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL:        envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:          envStr("OLLAMA_MODEL", "llama3.2"),
		ModelTemperature:     env.Float("MODEL_TEMPERATURE", float64(usecases.DefaultTemperature)),
		ModelTimeout:         env.Duration("MODEL_TIMEOUT", usecases.DefaultModelTimeout),
		SearchTimeout:        env.Duration("SEARCH_TIMEOUT", usecases.DefaultSearchTimeout),
		FirecrawlAPIKey:      envStr("FIRECRAWL_API_KEY", ""),
		FirecrawlBaseURL:     envStr("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
		CrawlTimeout:         env.Duration("CRAWL_TIMEOUT", usecases.DefaultCrawlTimeout),
		AgentPreset:          strings.ToLower(envStr("AGENT_PRESET", usecases.DefaultPreset)),
		KnowledgeDBPath:      envStr("KNOWLEDGE_DB_PATH", ""),
		KnowledgeDir:         envStr("KNOWLEDGE_DIR", ""),
		KnowledgeWebCapacity: env.Int("KNOWLEDGE_WEB_CAPACITY", 256),
	}
	if err := env.Err(); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.ModelProvider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("MODEL_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOllama, c.ModelProvider)
	}
	if c.ModelProvider == ProviderOllama && c.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be between 0 and 2, got %g", c.ModelTemperature)
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive, got %s", c.ModelTimeout)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must be positive, got %s", c.SearchTimeout)
	}
	if c.CrawlTimeout <= 0 {
		return fmt.Errorf("CRAWL_TIMEOUT must be positive, got %s", c.CrawlTimeout)
	}
	if _, err := usecases.Preset(c.AgentPreset); err != nil {
		return fmt.Errorf("AGENT_PRESET: %w", err)
	}
	if c.KnowledgeWebCapacity < 1 {
		return fmt.Errorf("KNOWLEDGE_WEB_CAPACITY must be positive, got %d", c.KnowledgeWebCapacity)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// HasModelCredential reports whether the selected provider can be reached.
// Ollama runs locally and needs none.
func (c *Config) HasModelCredential() bool {
	return c.ModelProvider == ProviderOllama || c.GeminiAPIKey != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envReader parses typed variables and keeps every parse failure.
type envReader struct {
	errs []error
}

func (r *envReader) Int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return i
}

func (r *envReader) Float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return fallback
	}
	return f
}

func (r *envReader) Duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q (use a unit, e.g. 30s)", key, v))
		return fallback
	}
	return d
}

// Err joins all parse failures, or returns nil.
func (r *envReader) Err() error {
	return errors.Join(r.errs...)
}
