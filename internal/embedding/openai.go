package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder produces embeddings via an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	batchSize  int
}

// modelDimensions maps known embedding models to their output dimensionality.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"all-MiniLM-L6-v2":       384,
}

// NewOpenAIEmbedder creates an embedder for the given model. baseURL may be
// empty for the default OpenAI endpoint, or point at any compatible server
// (e.g. a local inference gateway). dimensions overrides the model lookup
// when positive; unknown models require it.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions, batchSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if dimensions <= 0 {
		d, ok := modelDimensions[model]
		if !ok {
			return nil, fmt.Errorf("unknown embedding model %q: dimensions must be configured", model)
		}
		dimensions = d
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		batchSize:  batchSize,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in API batches of at most batchSize.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: e.model,
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d embeddings", start, end, len(resp.Data))
		}
		for _, d := range resp.Data {
			if len(d.Embedding) != e.dimensions {
				return nil, fmt.Errorf("model returned %d dimensions, expected %d", len(d.Embedding), e.dimensions)
			}
			embeddings = append(embeddings, d.Embedding)
		}
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the underlying HTTP client has no resources to release.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
