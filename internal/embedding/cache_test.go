package embedding

import (
	"context"
	"testing"
)

// countingEmbedder counts how many texts reach the underlying embedder.
type countingEmbedder struct {
	*MockEmbedder
	embedded int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedded++
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedded += len(texts)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderAvoidsRecompute(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	cached := WithCache(inner, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cached.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if inner.embedded != 1 {
		t.Errorf("inner embedder called %d times, want 1", inner.embedded)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached embedding differs from original")
		}
	}
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	cached := WithCache(inner, 10)
	ctx := context.Background()

	if _, err := cached.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	out, err := cached.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d embeddings, want 3", len(out))
	}
	// "a" was cached; only "b" and "c" reach the inner embedder.
	if inner.embedded != 3 { // 1 (warm-up) + 2 (misses)
		t.Errorf("inner embedder saw %d texts, want 3", inner.embedded)
	}
	direct, _ := inner.MockEmbedder.Embed(ctx, "b")
	for i := range direct {
		if out[1][i] != direct[i] {
			t.Fatal("batch result order does not match input order")
		}
	}
}

func TestCachedEmbedderEviction(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	cached := WithCache(inner, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} { // "a" evicted
		if _, err := cached.Embed(ctx, text); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := cached.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if inner.embedded != 4 {
		t.Errorf("inner embedder called %d times, want 4 (a recomputed after eviction)", inner.embedded)
	}
}

func TestWithCacheDisabled(t *testing.T) {
	inner := NewMockEmbedder(4)
	if WithCache(inner, 0) != Embedder(inner) {
		t.Error("zero capacity should return the inner embedder unchanged")
	}
}
