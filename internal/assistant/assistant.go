// Package assistant orchestrates one question/answer round: index new
// material, retrieve evidence, synthesize an answer, remember the exchange.
package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunk"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/source"
	"github.com/hyperjump/kotae/internal/synthesis"
)

// Assistant wires the pipeline stages together.
type Assistant struct {
	source      source.DocumentSource
	ingestor    *ingest.Ingestor
	engine      *search.Engine
	memory      memory.Store
	synthesizer synthesis.Synthesizer
	config      *config.Config
	logger      *zap.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates an Assistant over its collaborators.
func New(
	src source.DocumentSource,
	ingestor *ingest.Ingestor,
	engine *search.Engine,
	mem memory.Store,
	synthesizer synthesis.Synthesizer,
	cfg *config.Config,
	opts ...Option,
) *Assistant {
	a := &Assistant{
		source:      src,
		ingestor:    ingestor,
		engine:      engine,
		memory:      mem,
		synthesizer: synthesizer,
		config:      cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask runs one full round. New documents and any supplied web results are
// indexed first so retrieval sees them; indexing is idempotent, so repeat
// questions over an unchanged corpus cost no extra writes.
func (a *Assistant) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	docs, err := a.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	report, err := a.ingestor.IngestDocuments(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("ingest documents: %w", err)
	}
	a.confirmIndexed(ctx, report)
	if len(req.WebResults) > 0 {
		webReport, err := a.ingestor.IngestWebResults(ctx, req.WebResults)
		if err != nil {
			return nil, fmt.Errorf("ingest web results: %w", err)
		}
		report.Merge(webReport)
	}

	results, err := a.engine.Search(ctx, req.Question, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	history, err := a.memory.Context(ctx, conversationID, a.config.Memory.ContextWindow)
	if err != nil {
		return nil, fmt.Errorf("load conversation context: %w", err)
	}

	blocks := chunk.Collect(a.contextItems(docs, req.WebResults), a.config.Chunk.MaxChars)
	answer, err := a.synthesizer.Synthesize(ctx, synthesis.Request{
		Question:  req.Question,
		Blocks:    blocks,
		Citations: report.Citations,
		Results:   results,
		History:   history,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	if answer != "" {
		if err := a.memory.Remember(ctx, conversationID, req.Question, answer); err != nil {
			// A lost exchange degrades follow-ups but the answer is good.
			if a.logger != nil {
				a.logger.Warn("failed to record exchange", zap.Error(err))
			}
		}
	}

	if a.logger != nil {
		a.logger.Info("ask complete",
			zap.String("conversation_id", conversationID),
			zap.Int("results", len(results)),
			zap.Int("indexed", report.Written))
	}
	return &models.AskResponse{
		ConversationID: conversationID,
		Answer:         answer,
		Results:        results,
		Citations:      report.Citations,
		Ingest:         report,
	}, nil
}

// confirmIndexed tells a skip-unchanged source that its files reached the
// index. Withheld after a pass with failed batches: those points depend on
// re-extraction of their source files to be retried.
func (a *Assistant) confirmIndexed(ctx context.Context, report *models.IngestReport) {
	confirmer, ok := a.source.(source.IndexConfirmer)
	if !ok || report.FailedBatches > 0 {
		return
	}
	if err := confirmer.MarkIndexed(ctx); err != nil && a.logger != nil {
		a.logger.Warn("failed to record file states", zap.Error(err))
	}
}

// contextItems lays out the synthesizer's source material: document pages
// in corpus order, then web snippet pages ordered by descending score.
func (a *Assistant) contextItems(docs []models.DocumentInput, web []models.WebResult) []chunk.Item {
	var items []chunk.Item
	for _, doc := range docs {
		for _, page := range doc.Pages {
			if page.Text == "" {
				continue
			}
			items = append(items, chunk.Item{
				Source: models.DocumentRef(doc.SourceID),
				Title:  doc.Title,
				Page:   page.Page,
				Text:   page.Text,
			})
		}
	}
	return append(items, chunk.ItemsFromWebResults(web, a.config.Ingest.SnippetPageSize)...)
}
