package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/assistant"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/source"
	"github.com/hyperjump/kotae/internal/synthesis"
	"github.com/hyperjump/kotae/internal/vectorindex"
	"github.com/hyperjump/kotae/internal/vectorindex/indextest"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fake := indextest.New()
	t.Cleanup(fake.Close)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	client, err := vectorindex.NewClient(vectorindex.Config{
		URL:           fake.URL(),
		Collection:    cfg.Index.Collection,
		Dimension:     8,
		ReadyInterval: time.Millisecond,
		ReadyAttempts: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	src := source.NewFSSource(t.TempDir(), []string{".txt"})
	embedder := embedding.NewMockEmbedder(8)
	ingestor := ingest.NewIngestor(client, embedder, &cfg.Ingest)
	engine := search.NewEngine(client, embedder, &cfg.Search)
	store, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	asst := assistant.New(src, ingestor, engine, store, synthesis.Disabled{}, cfg)
	return NewServer(asst, engine, ingestor, src, client, &cfg.Server, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func seedDocuments(t *testing.T, handler http.Handler) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ingest/documents", []models.DocumentInput{
		{
			SourceID: "paper.pdf",
			Title:    "A Paper",
			Pages: []models.PageText{
				{Page: 1, Text: "vector databases store embeddings"},
				{Page: 2, Text: "similarity search uses cosine distance"},
			},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t).Router()
	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestIngestDocumentsEndpoint(t *testing.T) {
	handler := newTestServer(t).Router()
	seedDocuments(t, handler)

	var report models.IngestReport
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ingest/documents", []models.DocumentInput{
		{
			SourceID: "paper.pdf",
			Title:    "A Paper",
			Pages:    []models.PageText{{Page: 1, Text: "vector databases store embeddings"}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Written != 0 || report.Existing != 1 {
		t.Errorf("re-ingest report = %+v, want 0 written / 1 existing", report)
	}
}

func TestSearchEndpoint(t *testing.T) {
	handler := newTestServer(t).Router()
	seedDocuments(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/search", searchRequest{
		Query: "similarity search uses cosine distance",
		TopK:  2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].Page != 2 {
		t.Errorf("top result page = %d, want the exact-content page 2", resp.Results[0].Page)
	}
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	handler := newTestServer(t).Router()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/search", searchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestAskEndpoint(t *testing.T) {
	handler := newTestServer(t).Router()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{
		Question: "what stores embeddings?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ConversationID == "" {
		t.Error("conversation id missing")
	}
}

func TestAskEndpointRejectsEmptyQuestion(t *testing.T) {
	handler := newTestServer(t).Router()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestIngestWebEndpoint(t *testing.T) {
	handler := newTestServer(t).Router()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ingest/web", []models.WebResult{
		{URL: "http://example.org/a", Title: "A", Snippet: "short snippet", Score: 0.5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var report models.IngestReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Written != 1 {
		t.Errorf("report = %+v, want 1 written", report)
	}
}

func TestStatusEndpoint(t *testing.T) {
	handler := newTestServer(t).Router()
	seedDocuments(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Collection string `json:"collection"`
		Points     int    `json:"points"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Points != 2 {
		t.Errorf("points = %d, want 2", resp.Points)
	}
	if resp.Collection == "" {
		t.Error("collection name missing")
	}
}
