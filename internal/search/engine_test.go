package search

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vectorindex"
	"github.com/hyperjump/kotae/internal/vectorindex/indextest"
)

func newTestEngine(t *testing.T, fake *indextest.Fake, cfg config.SearchConfig) (*Engine, *vectorindex.Client, embedding.Embedder) {
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
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	embedder := embedding.NewMockEmbedder(8)
	return NewEngine(client, embedder, &cfg), client, embedder
}

func seedPoints(t *testing.T, client *vectorindex.Client, embedder embedding.Embedder, payloads []vectorindex.Payload) {
	t.Helper()
	ctx := context.Background()
	if err := client.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	points := make([]vectorindex.Point, len(payloads))
	for i, p := range payloads {
		vec, err := embedder.Embed(ctx, p.Content)
		if err != nil {
			t.Fatal(err)
		}
		points[i] = vectorindex.Point{ID: uint64(i + 1), Vector: vec, Payload: p}
	}
	if err := client.Upsert(ctx, points); err != nil {
		t.Fatal(err)
	}
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	engine, client, embedder := newTestEngine(t, fake, config.SearchConfig{})

	seedPoints(t, client, embedder, []vectorindex.Payload{
		{Kind: "pdf", Filename: "a.pdf", Title: "A", Page: 1, Content: "neural network training"},
		{Kind: "pdf", Filename: "b.pdf", Title: "B", Page: 1, Content: "gradient descent optimization"},
		{Kind: "pdf", Filename: "c.pdf", Title: "C", Page: 2, Content: "sourdough bread recipes"},
	})

	results, err := engine.Search(context.Background(), "gradient descent optimization", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Source.Ref != "b.pdf" {
		t.Errorf("top result = %q, want the exact-content match b.pdf", results[0].Source.Ref)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not ordered by score: %v > %v at %d", results[i].Score, results[i-1].Score, i)
		}
	}
}

func TestSearchNormalizesSources(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	engine, client, embedder := newTestEngine(t, fake, config.SearchConfig{})

	seedPoints(t, client, embedder, []vectorindex.Payload{
		{Kind: "pdf", Filename: "paper.pdf", Title: "Paper", Page: 3, Content: "alpha"},
		{Kind: "web", URL: "http://example.org/x", Title: "Page", Page: 1, Score: 0.9, Content: "beta"},
	})

	results, err := engine.Search(context.Background(), "alpha", 2)
	if err != nil {
		t.Fatal(err)
	}
	byRef := make(map[string]models.SearchResult, len(results))
	for _, r := range results {
		byRef[r.Source.Ref] = r
	}
	doc, ok := byRef["paper.pdf"]
	if !ok || doc.Source.Kind != models.KindDocument || doc.Page != 3 {
		t.Errorf("document result = %+v", doc)
	}
	web, ok := byRef["http://example.org/x"]
	if !ok || web.Source.Kind != models.KindWeb {
		t.Errorf("web result = %+v", web)
	}
}

func TestSearchTopKBounds(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	engine, client, embedder := newTestEngine(t, fake, config.SearchConfig{TopK: 2, MaxTopK: 3})

	seedPoints(t, client, embedder, []vectorindex.Payload{
		{Kind: "pdf", Filename: "a.pdf", Title: "A", Page: 1, Content: "one"},
		{Kind: "pdf", Filename: "b.pdf", Title: "B", Page: 1, Content: "two"},
		{Kind: "pdf", Filename: "c.pdf", Title: "C", Page: 1, Content: "three"},
		{Kind: "pdf", Filename: "d.pdf", Title: "D", Page: 1, Content: "four"},
	})

	results, err := engine.Search(context.Background(), "one", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("default topK returned %d results, want 2", len(results))
	}

	results, err = engine.Search(context.Background(), "one", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("capped topK returned %d results, want 3", len(results))
	}
}

func TestSearchFailureIsError(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	engine, client, embedder := newTestEngine(t, fake, config.SearchConfig{})
	seedPoints(t, client, embedder, []vectorindex.Payload{
		{Kind: "pdf", Filename: "a.pdf", Title: "A", Page: 1, Content: "one"},
	})

	fake.FailSearch = true
	if _, err := engine.Search(context.Background(), "one", 1); err == nil {
		t.Fatal("expected error when the index search fails")
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	engine, _, _ := newTestEngine(t, fake, config.SearchConfig{})

	results, err := engine.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("empty collection should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty collection", len(results))
	}
}
