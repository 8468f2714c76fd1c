// Package search runs semantic retrieval against the vector index.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vectorindex"
)

// Engine embeds queries and retrieves nearest indexed content.
type Engine struct {
	index    *vectorindex.Client
	embedder embedding.Embedder
	config   *config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over the given index and embedder.
func NewEngine(index *vectorindex.Client, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{index: index, embedder: embedder, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search embeds the query and returns the topK nearest results, most
// similar first. topK <= 0 falls back to the configured default and is
// capped at the configured maximum.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = e.config.TopK
	}
	if e.config.MaxTopK > 0 && topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}

	if err := e.index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, resultFromHit(hit))
	}
	if e.logger != nil {
		e.logger.Debug("search complete",
			zap.Int("top_k", topK),
			zap.Int("results", len(results)))
	}
	return results, nil
}

// resultFromHit normalizes a stored payload into a SearchResult. The wire
// payload keys either a filename or a URL by kind; the result carries a
// single tagged source reference instead.
func resultFromHit(hit vectorindex.ScoredPoint) models.SearchResult {
	source := models.DocumentRef(hit.Payload.Filename)
	if hit.Payload.Kind == string(models.KindWeb) {
		source = models.WebRef(hit.Payload.URL)
	}
	return models.SearchResult{
		Source: source,
		Title:  hit.Payload.Title,
		Page:   hit.Payload.Page,
		Score:  hit.Score,
		Text:   hit.Payload.Content,
	}
}
