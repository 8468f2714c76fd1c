// Package indextest provides an in-memory fake of the vector index service
// for tests: an HTTP server speaking the subset of the Qdrant REST API that
// the client uses, with failure-injection knobs.
package indextest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

type storedPoint struct {
	Vector  []float32
	Payload json.RawMessage
}

// Fake is an in-memory vector index service.
type Fake struct {
	mu      sync.Mutex
	created bool
	points  map[uint64]storedPoint
	server  *httptest.Server

	// PendingPolls makes the collection report a non-green status for the
	// first N status checks after creation.
	PendingPolls int
	// FailRetrieve makes point retrieve-by-id requests return 500.
	FailRetrieve bool
	// FailUpserts makes the next N upsert requests return 500.
	FailUpserts int
	// FailSearch makes search requests return 500.
	FailSearch bool

	// UpsertCalls counts upsert requests, RetrieveCalls retrieve requests.
	UpsertCalls   int
	RetrieveCalls int
}

// New starts a fake index service. Callers must Close it.
func New() *Fake {
	f := &Fake{points: make(map[uint64]storedPoint)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the base URL of the fake service.
func (f *Fake) URL() string { return f.server.URL }

// Close shuts the fake down.
func (f *Fake) Close() { f.server.Close() }

// Len returns the number of stored points.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// IDs returns the stored point IDs in ascending order.
func (f *Fake) IDs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint64, 0, len(f.points))
	for id := range f.points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Created reports whether the collection has been created.
func (f *Fake) Created() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *Fake) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/points") && r.Method == http.MethodPut:
		f.handleUpsert(w, r)
	case strings.HasSuffix(path, "/points") && r.Method == http.MethodPost:
		f.handleRetrieve(w, r)
	case strings.HasSuffix(path, "/points/search"):
		f.handleSearch(w, r)
	case strings.HasSuffix(path, "/points/scroll"):
		f.handleScroll(w, r)
	case strings.HasSuffix(path, "/points/count"):
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"count": len(f.points)}})
	case r.Method == http.MethodGet:
		f.handleStatus(w)
	case r.Method == http.MethodPut:
		f.handleCreate(w)
	case r.Method == http.MethodDelete:
		f.created = false
		f.points = make(map[uint64]storedPoint)
		writeJSON(w, http.StatusOK, map[string]any{"result": true})
	default:
		http.Error(w, "unhandled", http.StatusNotFound)
	}
}

func (f *Fake) handleStatus(w http.ResponseWriter) {
	if !f.created {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}
	status := "green"
	if f.PendingPolls > 0 {
		f.PendingPolls--
		status = "yellow"
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"status": status}})
}

func (f *Fake) handleCreate(w http.ResponseWriter) {
	if f.created {
		http.Error(w, "already exists", http.StatusConflict)
		return
	}
	f.created = true
	writeJSON(w, http.StatusOK, map[string]any{"result": true})
}

func (f *Fake) handleUpsert(w http.ResponseWriter, r *http.Request) {
	f.UpsertCalls++
	if f.FailUpserts > 0 {
		f.FailUpserts--
		http.Error(w, "injected upsert failure", http.StatusInternalServerError)
		return
	}
	var req struct {
		Points []struct {
			ID      uint64          `json:"id"`
			Vector  []float32       `json:"vector"`
			Payload json.RawMessage `json:"payload"`
		} `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, p := range req.Points {
		f.points[p.ID] = storedPoint{Vector: p.Vector, Payload: p.Payload}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"status": "completed"}})
}

func (f *Fake) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	f.RetrieveCalls++
	if f.FailRetrieve {
		http.Error(w, "injected retrieve failure", http.StatusInternalServerError)
		return
	}
	var req struct {
		IDs []uint64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result := make([]map[string]any, 0)
	for _, id := range req.IDs {
		if _, ok := f.points[id]; ok {
			result = append(result, map[string]any{"id": id})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (f *Fake) handleSearch(w http.ResponseWriter, r *http.Request) {
	if f.FailSearch {
		http.Error(w, "injected search failure", http.StatusInternalServerError)
		return
	}
	var req struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	type hit struct {
		ID      uint64          `json:"id"`
		Score   float64         `json:"score"`
		Payload json.RawMessage `json:"payload"`
	}
	hits := make([]hit, 0, len(f.points))
	for id, p := range f.points {
		hits = append(hits, hit{ID: id, Score: utils.Cosine(req.Vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if req.Limit > 0 && req.Limit < len(hits) {
		hits = hits[:req.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": hits})
}

func (f *Fake) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	type pt struct {
		ID      uint64          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	points := make([]pt, 0, len(f.points))
	for id, p := range f.points {
		points = append(points, pt{ID: id, Payload: p.Payload})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	if req.Limit > 0 && req.Limit < len(points) {
		points = points[:req.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"points": points}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
