// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Memory    MemoryConfig    `yaml:"memory"`
	Papers    PapersConfig    `yaml:"papers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// IndexConfig holds the remote vector index service settings.
type IndexConfig struct {
	URL                  string `yaml:"url"`
	APIKeyEnv            string `yaml:"api_key_env"`
	Collection           string `yaml:"collection"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	ReadyIntervalSeconds int    `yaml:"ready_interval_seconds"`
	ReadyAttempts        int    `yaml:"ready_attempts"`
}

// EmbeddingConfig holds embedder settings. Provider is "openai", "onnx",
// or "mock"; one model is pinned per collection.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	ModelPath  string `yaml:"model_path"` // onnx provider only
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// IngestConfig holds batching limits for the ingestion pipeline.
type IngestConfig struct {
	UpsertBatchSize int `yaml:"upsert_batch_size"`
	LookupBatchSize int `yaml:"lookup_batch_size"`
	SnippetPageSize int `yaml:"snippet_page_size"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	TopK    int `yaml:"top_k"`
	MaxTopK int `yaml:"max_top_k"`
}

// ChunkConfig bounds the context blocks handed to the synthesizer.
type ChunkConfig struct {
	MaxChars int `yaml:"max_chars"`
}

// SynthesisConfig holds answer-synthesis settings. Provider is "azure",
// "openai", or "none" (no synthesizer; /ask returns evidence only).
// Azure uses deployment and api_version; plain OpenAI uses model (falling
// back to deployment) and treats endpoint_env as an optional base URL
// override for OpenAI-compatible servers.
type SynthesisConfig struct {
	Provider    string  `yaml:"provider"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	EndpointEnv string  `yaml:"endpoint_env"`
	Deployment  string  `yaml:"deployment"`
	Model       string  `yaml:"model"`
	APIVersion  string  `yaml:"api_version"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	DatabasePath  string `yaml:"database_path"`
	ContextWindow int    `yaml:"context_window"`
}

// PapersConfig holds the local document source settings.
type PapersConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	Watch      bool     `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Memory.DatabasePath = expandPath(cfg.Memory.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Papers.Directory != "" {
		cfg.Papers.Directory = expandPath(cfg.Papers.Directory, configDir)
	}

	return &cfg, nil
}

// Validate checks settings that are required before any request can be
// served. Missing required settings are fatal at startup.
func (c *Config) Validate() error {
	if c.Index.URL == "" {
		return fmt.Errorf("index.url is required")
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index.collection is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		return fmt.Errorf("embedding.provider must be openai, onnx, or mock, got %q", c.Embedding.Provider)
	}
	switch c.Synthesis.Provider {
	case "azure", "openai", "none":
	default:
		return fmt.Errorf("synthesis.provider must be azure, openai, or none, got %q", c.Synthesis.Provider)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
