// Package config handles application configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ingest      IngestConfig      `yaml:"ingest"`
	RateLimits  RateLimitConfig   `yaml:"rate_limits"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"` // openai, ollama
	APIKey         string `yaml:"api_key"`
	OllamaURL      string `yaml:"ollama_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDims  int    `yaml:"embedding_dimensions"`

	// Per-stage model selection. Empty values fall back to Model.
	Model              string `yaml:"model"`
	ClaimExtraction    string `yaml:"claim_extraction_model"`
	FactVerification   string `yaml:"fact_verification_model"`
	ComplianceCheck    string `yaml:"compliance_check_model"`
	FeedbackGeneration string `yaml:"feedback_generation_model"`
	QueryExpansion     string `yaml:"query_expansion_model"`
	Reranking          string `yaml:"reranking_model"`
}

// StageModel returns the model configured for a pipeline stage, falling
// back to the default model when the stage has no override.
func (c *LLMConfig) StageModel(stage string) string {
	if stage == "" {
		return c.Model
	}
	return stage
}

type VectorStoreConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RetrievalConfig struct {
	// Evidence older than this many days is dropped for recency-sensitive
	// claims. Evidence without a parseable timestamp always passes.
	TemporalHorizonDays int `yaml:"temporal_horizon_days"`
	// Concurrent claim verifications in a batch.
	VerifyConcurrency int `yaml:"verify_concurrency"`
	// TTL for cached query embeddings, in seconds.
	EmbeddingCacheTTL int `yaml:"embedding_cache_ttl_seconds"`
}

type IngestConfig struct {
	DataDir     string `yaml:"data_dir"`
	Concurrency int    `yaml:"concurrency"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"default_requests_per_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "./data/sentinel.db",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			EmbeddingModel: "text-embedding-3-large",
			EmbeddingDims:  3072,
		},
		VectorStore: VectorStoreConfig{
			Host:           "localhost",
			Port:           6333,
			TimeoutSeconds: 30,
		},
		Retrieval: RetrievalConfig{
			TemporalHorizonDays: 365,
			VerifyConcurrency:   5,
			EmbeddingCacheTTL:   3600,
		},
		Ingest: IngestConfig{
			DataDir:     "./data/knowledge",
			Concurrency: 4,
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (run with --generate-config to create one)", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Interpolate environment variables
	content := interpolateEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GenerateSample creates a sample configuration file.
func GenerateSample(path string) error {
	sample := `# Sentinel Configuration
# See documentation for all options

server:
  port: 8080

database:
  path: ./data/sentinel.db

llm:
  provider: openai  # openai or ollama
  model: gpt-4o
  api_key: ${OPENAI_API_KEY}
  embedding_model: text-embedding-3-large
  embedding_dimensions: 3072

  # Per-stage overrides (optional)
  # claim_extraction_model: gpt-4o
  # fact_verification_model: gpt-4o
  # compliance_check_model: gpt-4o-mini
  # feedback_generation_model: gpt-4o-mini
  # query_expansion_model: gpt-4o-mini
  # reranking_model: gpt-4o-mini

  # For Ollama (local):
  # provider: ollama
  # model: llama3
  # ollama_url: http://localhost:11434

vector_store:
  host: localhost
  port: 6333
  api_key: ${QDRANT_API_KEY}
  timeout_seconds: 30

retrieval:
  temporal_horizon_days: 365
  verify_concurrency: 5
  embedding_cache_ttl_seconds: 3600

ingest:
  data_dir: ./data/knowledge
  concurrency: 4

rate_limits:
  default_requests_per_minute: 60

logging:
  level: info  # debug, info, warn, error
  format: json # json or text
`
	return os.WriteFile(path, []byte(sample), 0644)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	if c.LLM.EmbeddingDims <= 0 {
		return fmt.Errorf("embedding_dimensions must be positive")
	}

	if c.Retrieval.VerifyConcurrency < 1 {
		return fmt.Errorf("verify_concurrency must be at least 1")
	}

	return nil
}

// interpolateEnvVars replaces ${VAR_NAME} with environment variable values.
func interpolateEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match // Keep original if not set
	})
}
