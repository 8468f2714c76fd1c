package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vectorindex"
	"github.com/hyperjump/kotae/internal/vectorindex/indextest"
)

func newTestIngestor(t *testing.T, fake *indextest.Fake, cfg config.IngestConfig) *Ingestor {
	t.Helper()
	client, err := vectorindex.NewClient(vectorindex.Config{
		URL:           fake.URL(),
		Collection:    "vector_bd",
		Dimension:     8,
		ReadyInterval: time.Millisecond,
		ReadyAttempts: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UpsertBatchSize == 0 {
		cfg.UpsertBatchSize = 50
	}
	if cfg.LookupBatchSize == 0 {
		cfg.LookupBatchSize = 100
	}
	if cfg.SnippetPageSize == 0 {
		cfg.SnippetPageSize = 500
	}
	return NewIngestor(client, embedding.NewMockEmbedder(8), &cfg)
}

func twoPageDoc() models.DocumentInput {
	return models.DocumentInput{
		SourceID: "paper.pdf",
		Title:    "A Paper",
		Pages: []models.PageText{
			{Page: 1, Text: "Intro and motivation"},
			{Page: 2, Text: "Methods and experiments"},
		},
	}
}

func TestIngestDocuments(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})

	report, err := ing.IngestDocuments(context.Background(), []models.DocumentInput{twoPageDoc()})
	if err != nil {
		t.Fatalf("IngestDocuments: %v", err)
	}
	if report.Written != 2 || report.Embedded != 2 {
		t.Errorf("written/embedded = %d/%d, want 2/2", report.Written, report.Embedded)
	}
	if fake.Len() != 2 {
		t.Errorf("index holds %d points, want 2", fake.Len())
	}
	if len(report.Citations) != 1 || report.Citations[0].PageRange != "1-2" {
		t.Errorf("citations = %+v, want one with range 1-2", report.Citations)
	}
}

func TestIngestIdempotent(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})
	ctx := context.Background()

	if _, err := ing.IngestDocuments(ctx, []models.DocumentInput{twoPageDoc()}); err != nil {
		t.Fatal(err)
	}
	firstIDs := fake.IDs()

	report, err := ing.IngestDocuments(ctx, []models.DocumentInput{twoPageDoc()})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 0 {
		t.Errorf("re-ingest wrote %d points, want 0", report.Written)
	}
	if report.Existing != 2 {
		t.Errorf("re-ingest saw %d existing, want 2", report.Existing)
	}
	if fake.Len() != 2 {
		t.Errorf("index holds %d points after re-ingest, want 2", fake.Len())
	}
	secondIDs := fake.IDs()
	for i := range firstIDs {
		if firstIDs[i] != secondIDs[i] {
			t.Fatal("point identities changed across identical ingestion runs")
		}
	}
}

func TestIngestChangedPage(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})
	ctx := context.Background()

	if _, err := ing.IngestDocuments(ctx, []models.DocumentInput{twoPageDoc()}); err != nil {
		t.Fatal(err)
	}

	edited := twoPageDoc()
	edited.Pages[1].Text = "Methods, revised after review"
	report, err := ing.IngestDocuments(ctx, []models.DocumentInput{edited})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 1 {
		t.Errorf("edited page produced %d upserts, want exactly 1", report.Written)
	}
	if report.Existing != 1 {
		t.Errorf("unchanged page should be existing, got %d", report.Existing)
	}
}

func TestIngestNormalizationInvariance(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})
	ctx := context.Background()

	doc := twoPageDoc()
	if _, err := ing.IngestDocuments(ctx, []models.DocumentInput{doc}); err != nil {
		t.Fatal(err)
	}
	// Same content with different case and spacing maps to the same identity.
	doc.Pages[0].Text = "  INTRO   and\tmotivation "
	report, err := ing.IngestDocuments(ctx, []models.DocumentInput{doc})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 0 {
		t.Errorf("reformatted content wrote %d points, want 0", report.Written)
	}
}

func TestIngestSkipsEmptyPages(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})

	doc := models.DocumentInput{
		SourceID: "sparse.pdf",
		Title:    "Sparse",
		Pages: []models.PageText{
			{Page: 1, Text: "content"},
			{Page: 2, Text: "   \n\t "},
			{Page: 3, Text: ""},
		},
	}
	report, err := ing.IngestDocuments(context.Background(), []models.DocumentInput{doc})
	if err != nil {
		t.Fatal(err)
	}
	if report.SkippedEmpty != 2 {
		t.Errorf("skipped %d empty pages, want 2", report.SkippedEmpty)
	}
	if report.Written != 1 {
		t.Errorf("written = %d, want 1", report.Written)
	}
	if len(report.Citations) != 1 || report.Citations[0].PageRange != "1" {
		t.Errorf("citation range = %+v, want \"1\"", report.Citations)
	}
}

func TestIngestDedupFailureDegradesToAllNew(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})
	ctx := context.Background()

	if _, err := ing.IngestDocuments(ctx, []models.DocumentInput{twoPageDoc()}); err != nil {
		t.Fatal(err)
	}

	// Lookups now fail; everything is treated as new and re-upserted.
	fake.FailRetrieve = true
	report, err := ing.IngestDocuments(ctx, []models.DocumentInput{twoPageDoc()})
	if err != nil {
		t.Fatalf("dedup failure must not abort ingestion: %v", err)
	}
	if report.Written != 2 {
		t.Errorf("degraded run wrote %d points, want 2", report.Written)
	}
	// Overwrites keyed by identity: the index still holds exactly 2 points.
	if fake.Len() != 2 {
		t.Errorf("index holds %d points, want 2 (no duplication)", fake.Len())
	}
}

func TestIngestPartialBatchFailure(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{UpsertBatchSize: 1})
	fake.FailUpserts = 1

	report, err := ing.IngestDocuments(context.Background(), []models.DocumentInput{twoPageDoc()})
	if err != nil {
		t.Fatalf("partial batch failure must not abort: %v", err)
	}
	if report.FailedBatches != 1 {
		t.Errorf("failed batches = %d, want 1", report.FailedBatches)
	}
	if report.Written != 1 {
		t.Errorf("written = %d, want 1", report.Written)
	}

	// The failed point is picked up on the next run at no extra cost.
	fake.FailUpserts = 0
	report, err = ing.IngestDocuments(context.Background(), []models.DocumentInput{twoPageDoc()})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 1 {
		t.Errorf("retry run wrote %d, want the 1 missing point", report.Written)
	}
	if fake.Len() != 2 {
		t.Errorf("index holds %d points, want 2", fake.Len())
	}
}

func TestIngestBatchesRequests(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{UpsertBatchSize: 10, LookupBatchSize: 10})

	pages := make([]models.PageText, 25)
	for i := range pages {
		pages[i] = models.PageText{Page: i + 1, Text: fmt.Sprintf("page %d body", i+1)}
	}
	doc := models.DocumentInput{SourceID: "long.pdf", Title: "Long", Pages: pages}
	report, err := ing.IngestDocuments(context.Background(), []models.DocumentInput{doc})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 25 {
		t.Errorf("written = %d, want 25", report.Written)
	}
	if fake.RetrieveCalls != 3 {
		t.Errorf("lookup round-trips = %d, want 3 (batches of 10)", fake.RetrieveCalls)
	}
	if fake.UpsertCalls != 3 {
		t.Errorf("upsert round-trips = %d, want 3 (batches of 10)", fake.UpsertCalls)
	}
}

func TestIngestWebResults(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})

	results := []models.WebResult{
		{URL: "http://example.org/paper", Title: "Web Paper", Snippet: strings.Repeat("s", 1300), Score: 0.7},
	}
	report, err := ing.IngestWebResults(context.Background(), results)
	if err != nil {
		t.Fatal(err)
	}
	if report.Candidates != 3 {
		t.Errorf("candidates = %d, want 3 snippet pages", report.Candidates)
	}
	if report.Written != 3 {
		t.Errorf("written = %d, want 3", report.Written)
	}

	// Re-ingesting the same snippet is a no-op.
	report, err = ing.IngestWebResults(context.Background(), results)
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 0 {
		t.Errorf("re-ingest wrote %d, want 0", report.Written)
	}
}

func TestIngestNoUnits(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	ing := newTestIngestor(t, fake, config.IngestConfig{})
	report, err := ing.IngestDocuments(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Candidates != 0 || report.Written != 0 {
		t.Errorf("empty input should be a no-op, got %+v", report)
	}
}
