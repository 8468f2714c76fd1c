// Package embedding provides text embedding via a remote OpenAI-compatible
// API or a local ONNX model, with optional caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. One model is pinned per
// collection: mixing embedding models in the same index silently degrades
// relevance with no error signal.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
