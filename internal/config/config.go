// Package config provides configuration for the Engram memory engine.
// Settings are loaded from environment variables with the ENGRAM_ prefix,
// optionally overlaid on a YAML file, with sensible defaults for every
// option.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the memory engine.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Memory  MemoryConfig  `yaml:"memory"`
}

// StorageConfig contains database and vector-index configuration.
type StorageConfig struct {
	// DataPath is the SQLite database path (default: ./data/engram.db).
	DataPath string `yaml:"data_path"`

	// VectorBackend selects the vector index: chromem or pgvector
	// (default: chromem).
	VectorBackend string `yaml:"vector_backend"`

	// VectorPath is the chromem persistence directory
	// (default: ./data/vectors).
	VectorPath string `yaml:"vector_path"`

	// PostgresDSN is the connection string for the pgvector backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	// Provider selects the LLM backend: ollama or openai (default: ollama).
	Provider string `yaml:"provider"`

	// OllamaURL is the Ollama API URL (default: http://localhost:11434).
	OllamaURL string `yaml:"ollama_url"`

	// Model is the completion model used for summarization and reranking.
	Model string `yaml:"model"`

	// EmbeddingModel is the embedding model name. Empty disables
	// semantic indexing and search entirely.
	EmbeddingModel string `yaml:"embedding_model"`

	// OpenAIAPIKey authenticates the openai provider.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// EnableSummarizer turns background compaction on (default: true).
	EnableSummarizer bool `yaml:"enable_summarizer"`

	// EnableReranker turns search-result reranking on (default: false).
	EnableReranker bool `yaml:"enable_reranker"`
}

// MemoryConfig contains compaction and retention tuning.
type MemoryConfig struct {
	// SummaryThreshold is the message count at which a user's recent
	// turns are compacted into a memory (default: 12).
	SummaryThreshold int `yaml:"summary_threshold"`

	// RetentionDays prunes messages and memories older than this many
	// days. Zero disables pruning (default: 0).
	RetentionDays int `yaml:"retention_days"`
}

// Load builds the configuration from defaults, then an optional YAML
// file at path (empty path skips the file), then ENGRAM_* environment
// variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Memory.SummaryThreshold < 1 {
		return nil, fmt.Errorf("config: summary_threshold must be positive, got %d", cfg.Memory.SummaryThreshold)
	}
	if cfg.Memory.RetentionDays < 0 {
		return nil, fmt.Errorf("config: retention_days must not be negative, got %d", cfg.Memory.RetentionDays)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DataPath:      "./data/engram.db",
			VectorBackend: "chromem",
			VectorPath:    "./data/vectors",
		},
		LLM: LLMConfig{
			Provider:         "ollama",
			OllamaURL:        "http://localhost:11434",
			Model:            "qwen2.5:7b",
			EmbeddingModel:   "nomic-embed-text",
			EnableSummarizer: true,
		},
		Memory: MemoryConfig{
			SummaryThreshold: 12,
		},
	}
}

func (c *Config) applyEnv() {
	c.Storage.DataPath = getEnv("ENGRAM_DATA_PATH", c.Storage.DataPath)
	c.Storage.VectorBackend = getEnv("ENGRAM_VECTOR_BACKEND", c.Storage.VectorBackend)
	c.Storage.VectorPath = getEnv("ENGRAM_VECTOR_PATH", c.Storage.VectorPath)
	c.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.LLM.Provider = getEnv("ENGRAM_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.OllamaURL = getEnv("ENGRAM_OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.Model = getEnv("ENGRAM_MODEL", c.LLM.Model)
	c.LLM.EmbeddingModel = getEnv("ENGRAM_EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.OpenAIAPIKey = getEnv("ENGRAM_OPENAI_API_KEY", c.LLM.OpenAIAPIKey)
	c.LLM.EnableSummarizer = getEnvBool("ENGRAM_ENABLE_SUMMARIZER", c.LLM.EnableSummarizer)
	c.LLM.EnableReranker = getEnvBool("ENGRAM_ENABLE_RERANKER", c.LLM.EnableReranker)

	c.Memory.SummaryThreshold = getEnvInt("ENGRAM_SUMMARY_THRESHOLD", c.Memory.SummaryThreshold)
	c.Memory.RetentionDays = getEnvInt("ENGRAM_RETENTION_DAYS", c.Memory.RetentionDays)
}

// getEnv retrieves a string environment variable or returns a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a
// default when unset or unparseable.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
