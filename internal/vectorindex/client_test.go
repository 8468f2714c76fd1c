package vectorindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/vectorindex/indextest"
)

func newTestClient(t *testing.T, fake *indextest.Fake) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:           fake.URL(),
		Collection:    "vector_bd",
		Dimension:     4,
		ReadyInterval: time.Millisecond,
		ReadyAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Collection: "c", Dimension: 4}); err == nil {
		t.Error("missing URL should be rejected")
	}
	if _, err := NewClient(Config{URL: "http://x", Dimension: 4}); err == nil {
		t.Error("missing collection should be rejected")
	}
	if _, err := NewClient(Config{URL: "http://x", Collection: "c"}); err == nil {
		t.Error("missing dimension should be rejected")
	}
}

func TestEnsureCollectionCreates(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	c := newTestClient(t, fake)

	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if !fake.Created() {
		t.Error("collection should have been created")
	}
	// Second call with the collection present is a no-op.
	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("repeated EnsureCollection: %v", err)
	}
}

func TestEnsureCollectionWaitsForReady(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	fake.PendingPolls = 2
	c := newTestClient(t, fake)

	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection should succeed once status turns green: %v", err)
	}
}

func TestEnsureCollectionRetryBudgetExhausted(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	fake.PendingPolls = 100 // never turns green within 3 attempts
	c := newTestClient(t, fake)

	err := c.EnsureCollection(context.Background())
	var nre *NotReadyError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if nre.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", nre.Attempts)
	}
}

func TestUpsertAndRetrieveIDs(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	c := newTestClient(t, fake)
	ctx := context.Background()
	if err := c.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}

	points := []Point{
		{ID: 11, Vector: []float32{1, 0, 0, 0}, Payload: Payload{Kind: "pdf", Filename: "a.pdf", Page: 1, Content: "intro"}},
		{ID: 22, Vector: []float32{0, 1, 0, 0}, Payload: Payload{Kind: "web", URL: "http://x", Page: 1, Content: "snippet"}},
	}
	if err := c.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if fake.Len() != 2 {
		t.Fatalf("stored %d points, want 2", fake.Len())
	}

	present, err := c.RetrieveIDs(ctx, []uint64{11, 22, 33})
	if err != nil {
		t.Fatalf("RetrieveIDs: %v", err)
	}
	if !present[11] || !present[22] || present[33] {
		t.Errorf("presence map wrong: %v", present)
	}

	// Overwriting the same IDs must not grow the collection.
	if err := c.Upsert(ctx, points); err != nil {
		t.Fatalf("repeat Upsert: %v", err)
	}
	if fake.Len() != 2 {
		t.Errorf("after overwrite stored %d points, want 2", fake.Len())
	}
}

func TestSearchOrdersByScore(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	c := newTestClient(t, fake)
	ctx := context.Background()
	if err := c.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	points := []Point{
		{ID: 1, Vector: []float32{1, 0, 0, 0}, Payload: Payload{Kind: "pdf", Filename: "a.pdf", Content: "A"}},
		{ID: 2, Vector: []float32{0, 1, 0, 0}, Payload: Payload{Kind: "pdf", Filename: "b.pdf", Content: "B"}},
		{ID: 3, Vector: []float32{0, 0, 1, 0}, Payload: Payload{Kind: "pdf", Filename: "c.pdf", Content: "C"}},
	}
	if err := c.Upsert(ctx, points); err != nil {
		t.Fatal(err)
	}

	// Query closest to point 2.
	hits, err := c.Search(ctx, []float32{0.1, 1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != 2 {
		t.Errorf("top hit ID = %d, want 2", hits[0].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits should be ordered by descending score")
	}
}

func TestCountAndScroll(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	c := newTestClient(t, fake)
	ctx := context.Background()
	if err := c.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(ctx, []Point{
		{ID: 5, Vector: []float32{1, 0, 0, 0}, Payload: Payload{Kind: "pdf", Filename: "a.pdf", Content: "x"}},
		{ID: 6, Vector: []float32{0, 1, 0, 0}, Payload: Payload{Kind: "pdf", Filename: "a.pdf", Content: "y"}},
	}); err != nil {
		t.Fatal(err)
	}
	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
	pts, err := c.Scroll(ctx, 10)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(pts) != 2 {
		t.Errorf("Scroll returned %d points, want 2", len(pts))
	}
}

func TestDeleteCollection(t *testing.T) {
	fake := indextest.New()
	defer fake.Close()
	c := newTestClient(t, fake)
	ctx := context.Background()
	if err := c.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(ctx, []Point{
		{ID: 11, Vector: []float32{1, 0, 0, 0}, Payload: Payload{Kind: "pdf", Filename: "a.pdf", Page: 1, Content: "intro"}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := c.DeleteCollection(ctx); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if fake.Created() || fake.Len() != 0 {
		t.Errorf("collection survived deletion: created=%v points=%d", fake.Created(), fake.Len())
	}

	// Deleting an absent collection is not an error.
	if err := c.DeleteCollection(ctx); err != nil {
		t.Fatalf("repeat DeleteCollection: %v", err)
	}
}

func TestConnectivityError(t *testing.T) {
	c, err := NewClient(Config{
		URL:        "http://127.0.0.1:1", // nothing listens here
		Collection: "vector_bd",
		Dimension:  4,
		Timeout:    200 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.EnsureCollection(context.Background()); err == nil {
		t.Error("unreachable service should surface an error")
	}
}
