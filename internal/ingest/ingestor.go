// Package ingest implements the incremental, idempotent indexing pipeline:
// normalize, assign content identity, deduplicate against the live index,
// embed new content, and upsert in bounded batches.
package ingest

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/chunk"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/identity"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vectorindex"
	"go.uber.org/zap"
)

// Ingestor indexes content units into the remote vector collection.
// Point identity is content-addressed, so every write is an idempotent
// overwrite: concurrent or repeated ingestion never duplicates points.
type Ingestor struct {
	index    *vectorindex.Client
	embedder embedding.Embedder
	cfg      *config.IngestConfig
	logger   *zap.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets a logger for per-batch events.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(ing *Ingestor) { ing.logger = l }
}

// NewIngestor creates an ingestor with the given dependencies.
func NewIngestor(index *vectorindex.Client, embedder embedding.Embedder, cfg *config.IngestConfig, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestDocuments indexes every non-empty page of the given documents and
// returns a report including per-document page-range citations.
func (ing *Ingestor) IngestDocuments(ctx context.Context, docs []models.DocumentInput) (*models.IngestReport, error) {
	var units []models.ContentUnit
	var citations []models.Citation
	for _, doc := range docs {
		var pages []int
		for _, page := range doc.Pages {
			units = append(units, models.ContentUnit{
				Source: models.DocumentRef(doc.SourceID),
				Title:  doc.Title,
				Page:   page.Page,
				Text:   page.Text,
			})
			if identity.Normalize(page.Text) != "" {
				pages = append(pages, page.Page)
			}
		}
		if len(pages) > 0 {
			citations = append(citations, models.Citation{
				Source:    models.DocumentRef(doc.SourceID),
				Title:     doc.Title,
				PageRange: identity.CompressPageRanges(pages),
			})
		}
	}
	report, err := ing.ingestUnits(ctx, units)
	if err != nil {
		return nil, err
	}
	report.Citations = citations
	return report, nil
}

// IngestWebResults splits each snippet into fixed-size pages and indexes
// them. The paging rule matches the one used at chunk-formatting time.
func (ing *Ingestor) IngestWebResults(ctx context.Context, results []models.WebResult) (*models.IngestReport, error) {
	var units []models.ContentUnit
	for _, w := range results {
		for _, page := range chunk.SnippetPages(w.Snippet, ing.cfg.SnippetPageSize) {
			units = append(units, models.ContentUnit{
				Source: models.WebRef(w.URL),
				Title:  w.Title,
				Page:   page.Page,
				Text:   page.Text,
				Score:  w.Score,
			})
		}
	}
	return ing.ingestUnits(ctx, units)
}

// candidate is a content unit that survived normalization, with its identity.
type candidate struct {
	id   uint64
	unit models.ContentUnit
	text string // canonical text, the embedding input
}

func (ing *Ingestor) ingestUnits(ctx context.Context, units []models.ContentUnit) (*models.IngestReport, error) {
	report := &models.IngestReport{Candidates: len(units)}
	if len(units) == 0 {
		return report, nil
	}
	if err := ing.index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	// Normalize, drop empties, assign identities. Within one pass the first
	// occurrence of an identity wins; later duplicates are already covered.
	seen := make(map[uint64]struct{})
	var candidates []candidate
	for _, unit := range units {
		canonical := identity.Normalize(unit.Text)
		if canonical == "" {
			report.SkippedEmpty++
			continue
		}
		id := identity.PointID(canonical, unit.Source.Ref, unit.Page)
		if _, dup := seen[id]; dup {
			report.Existing++
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, candidate{id: id, unit: unit, text: canonical})
	}
	if len(candidates) == 0 {
		return report, nil
	}

	fresh := ing.filterNew(ctx, candidates)
	report.Existing += len(candidates) - len(fresh)
	if len(fresh) == 0 {
		return report, nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.text
	}
	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d units: %w", len(fresh), err)
	}
	report.Embedded = len(fresh)

	points := make([]vectorindex.Point, len(fresh))
	for i, c := range fresh {
		points[i] = vectorindex.Point{
			ID:      c.id,
			Vector:  vectors[i],
			Payload: payloadFor(c.unit),
		}
	}
	written, failed := ing.upsertBatches(ctx, points)
	report.Written = written
	report.FailedBatches = failed
	if ing.logger != nil {
		ing.logger.Info("ingest pass complete",
			zap.Int("candidates", report.Candidates),
			zap.Int("skipped_empty", report.SkippedEmpty),
			zap.Int("existing", report.Existing),
			zap.Int("written", report.Written),
			zap.Int("failed_batches", report.FailedBatches))
	}
	return report, nil
}

// upsertBatches writes points in bounded batches. A failed batch is logged
// and skipped; remaining batches continue. Unwritten points are retried for
// free on the next ingestion run since they were never marked indexed.
func (ing *Ingestor) upsertBatches(ctx context.Context, points []vectorindex.Point) (written, failedBatches int) {
	size := ing.cfg.UpsertBatchSize
	if size <= 0 {
		size = 50
	}
	for start := 0; start < len(points); start += size {
		end := start + size
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]
		if err := ing.index.Upsert(ctx, batch); err != nil {
			failedBatches++
			if ing.logger != nil {
				ing.logger.Warn("upsert batch failed, continuing",
					zap.Int("batch_start", start),
					zap.Int("batch_size", len(batch)),
					zap.Error(err))
			}
			continue
		}
		written += len(batch)
	}
	return written, failedBatches
}

func payloadFor(unit models.ContentUnit) vectorindex.Payload {
	p := vectorindex.Payload{
		Kind:    string(unit.Source.Kind),
		Title:   unit.Title,
		Page:    unit.Page,
		Content: unit.Text,
	}
	switch unit.Source.Kind {
	case models.KindWeb:
		p.URL = unit.Source.Ref
		p.Score = unit.Score
	default:
		p.Filename = unit.Source.Ref
	}
	return p
}
