package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Index.APIKeyEnv == "" {
		cfg.Index.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "vector_bd"
	}
	if cfg.Index.TimeoutSeconds == 0 {
		cfg.Index.TimeoutSeconds = 120
	}
	if cfg.Index.ReadyIntervalSeconds == 0 {
		cfg.Index.ReadyIntervalSeconds = 2
	}
	if cfg.Index.ReadyAttempts == 0 {
		cfg.Index.ReadyAttempts = 10
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "onnx":
			cfg.Embedding.Dimensions = 384 // all-MiniLM-L6-v2
		default:
			cfg.Embedding.Dimensions = 1536
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Ingest.UpsertBatchSize == 0 {
		cfg.Ingest.UpsertBatchSize = 50
	}
	if cfg.Ingest.LookupBatchSize == 0 {
		cfg.Ingest.LookupBatchSize = 100
	}
	if cfg.Ingest.SnippetPageSize == 0 {
		cfg.Ingest.SnippetPageSize = 500
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}
	if cfg.Chunk.MaxChars == 0 {
		cfg.Chunk.MaxChars = 6000
	}
	if cfg.Synthesis.Provider == "" {
		cfg.Synthesis.Provider = "none"
	}
	if cfg.Synthesis.APIKeyEnv == "" {
		cfg.Synthesis.APIKeyEnv = "AZURE_OPENAI_API_KEY"
	}
	if cfg.Synthesis.EndpointEnv == "" {
		cfg.Synthesis.EndpointEnv = "AZURE_OPENAI_ENDPOINT"
	}
	if cfg.Synthesis.APIVersion == "" {
		cfg.Synthesis.APIVersion = "2024-12-01-preview"
	}
	if cfg.Synthesis.MaxTokens == 0 {
		cfg.Synthesis.MaxTokens = 800
	}
	if cfg.Synthesis.Temperature == 0 {
		cfg.Synthesis.Temperature = 0.7
	}
	if cfg.Memory.DatabasePath == "" {
		cfg.Memory.DatabasePath = "/usr/local/var/kotae/data/memory.db"
	}
	if cfg.Memory.ContextWindow == 0 {
		cfg.Memory.ContextWindow = 10
	}
	if cfg.Papers.Extensions == nil {
		cfg.Papers.Extensions = []string{".pdf", ".txt", ".md"}
	}
}
