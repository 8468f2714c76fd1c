// Package vectorindex is a REST client for the remote Qdrant vector index:
// collection lifecycle, batched point upsert/retrieve, and nearest-neighbor search.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultReadyInterval = 2 * time.Second
	defaultReadyAttempts = 10
)

// Config holds connection settings for the index service.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
	// ReadyInterval and ReadyAttempts bound the post-create readiness poll.
	ReadyInterval time.Duration
	ReadyAttempts int
}

// Client talks to one Qdrant collection. Collection name and dimension are
// read-only after construction; all methods are safe for concurrent use.
type Client struct {
	baseURL       string
	apiKey        string
	collection    string
	dimension     int
	readyInterval time.Duration
	readyAttempts int
	http          *http.Client
	logger        *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets a logger for debug output (collection lifecycle, batch sizes).
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the configured collection. Returns an error
// if the service URL, collection name, or dimension is missing; those are
// startup configuration problems, not request-time ones.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("vector index URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.ReadyInterval
	if interval == 0 {
		interval = defaultReadyInterval
	}
	attempts := cfg.ReadyAttempts
	if attempts == 0 {
		attempts = defaultReadyAttempts
	}
	c := &Client{
		baseURL:       cfg.URL,
		apiKey:        cfg.APIKey,
		collection:    cfg.Collection,
		dimension:     cfg.Dimension,
		readyInterval: interval,
		readyAttempts: attempts,
		http:          &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Collection returns the collection name.
func (c *Client) Collection() string { return c.collection }

// Dimension returns the configured vector dimension.
func (c *Client) Dimension() int { return c.dimension }

// Payload is the stored record for one point. Filename is set for document
// pages, URL for web snippets; readers should go through SourceRef-producing
// code rather than inspecting both.
type Payload struct {
	Kind     string  `json:"type"`
	Filename string  `json:"filename,omitempty"`
	URL      string  `json:"url,omitempty"`
	Title    string  `json:"title"`
	Page     int     `json:"page"`
	Score    float64 `json:"score,omitempty"`
	Content  string  `json:"content"`
}

// Point is one indexed record: content identity, embedding vector, payload.
type Point struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload Payload   `json:"payload"`
}

// ScoredPoint is a nearest-neighbor hit.
type ScoredPoint struct {
	ID      uint64  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// NotReadyError reports that the collection did not reach ready status
// within the readiness retry budget. Fatal for the current operation;
// the whole request may be retried later at no correctness cost.
type NotReadyError struct {
	Collection string
	Attempts   int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("collection %q not ready after %d status checks", e.Collection, e.Attempts)
}

// EnsureCollection makes sure the collection exists with the configured
// dimension and cosine distance, and is ready for traffic. Safe to call
// repeatedly and concurrently: a lost create race is treated as a no-op.
// Callers run it defensively at the start of every index or search operation.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.CollectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		if c.logger != nil {
			c.logger.Info("creating collection",
				zap.String("collection", c.collection),
				zap.Int("dimension", c.dimension))
		}
		if err := c.createCollection(ctx); err != nil {
			return err
		}
	}
	return c.awaitReady(ctx)
}

// CollectionExists reports whether the collection exists.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	status, _, err := c.do(ctx, http.MethodGet, c.collectionPath(""), nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d checking collection %q", status, c.collection)
	}
}

func (c *Client) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimension,
			"distance": "Cosine",
		},
	}
	status, respBody, err := c.do(ctx, http.MethodPut, c.collectionPath(""), body, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	// 409 means another caller won the create race; the collection exists,
	// which is all we wanted.
	if status == http.StatusConflict {
		if c.logger != nil {
			c.logger.Debug("collection already created by concurrent caller",
				zap.String("collection", c.collection))
		}
		return nil
	}
	if status >= 300 {
		return fmt.Errorf("create collection %q: status %d: %s", c.collection, status, respBody)
	}
	return nil
}

// awaitReady polls collection status until it reports green, up to the
// configured attempt budget.
func (c *Client) awaitReady(ctx context.Context) error {
	for attempt := 1; attempt <= c.readyAttempts; attempt++ {
		status, err := c.collectionStatus(ctx)
		if err != nil {
			return fmt.Errorf("collection status: %w", err)
		}
		if status == "green" {
			return nil
		}
		if c.logger != nil {
			c.logger.Debug("collection not ready",
				zap.String("collection", c.collection),
				zap.String("status", status),
				zap.Int("attempt", attempt))
		}
		if attempt == c.readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.readyInterval):
		}
	}
	return &NotReadyError{Collection: c.collection, Attempts: c.readyAttempts}
}

func (c *Client) collectionStatus(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	status, body, err := c.do(ctx, http.MethodGet, c.collectionPath(""), nil, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", status, body)
	}
	return resp.Result.Status, nil
}

// Upsert writes points to the collection, overwriting any existing point
// with the same ID. A point is either fully written or not written at all.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	status, respBody, err := c.do(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), body, nil)
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	if status >= 300 {
		return fmt.Errorf("upsert %d points: status %d: %s", len(points), status, respBody)
	}
	if c.logger != nil {
		c.logger.Debug("points upserted", zap.Int("count", len(points)))
	}
	return nil
}

// RetrieveIDs returns which of the given point IDs exist in the collection.
// Vectors and payloads are not fetched; the cost of a lookup round-trip is
// independent of collection size.
func (c *Client) RetrieveIDs(ctx context.Context, ids []uint64) (map[uint64]bool, error) {
	present := make(map[uint64]bool, len(ids))
	if len(ids) == 0 {
		return present, nil
	}
	body := map[string]any{
		"ids":          ids,
		"with_payload": false,
		"with_vector":  false,
	}
	var resp struct {
		Result []struct {
			ID uint64 `json:"id"`
		} `json:"result"`
	}
	status, respBody, err := c.do(ctx, http.MethodPost, c.collectionPath("/points"), body, &resp)
	if err != nil {
		return nil, fmt.Errorf("retrieve %d ids: %w", len(ids), err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("retrieve %d ids: status %d: %s", len(ids), status, respBody)
	}
	for _, p := range resp.Result {
		present[p.ID] = true
	}
	return present, nil
}

// Search returns up to limit points nearest to the query vector, ordered by
// descending similarity score.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []ScoredPoint `json:"result"`
	}
	status, respBody, err := c.do(ctx, http.MethodPost, c.collectionPath("/points/search"), body, &resp)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search: status %d: %s", status, respBody)
	}
	return resp.Result, nil
}

// Scroll enumerates up to limit points with payloads. Administrative
// inspection only; never used on the ingestion hot path.
func (c *Client) Scroll(ctx context.Context, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []Point `json:"points"`
		} `json:"result"`
	}
	status, respBody, err := c.do(ctx, http.MethodPost, c.collectionPath("/points/scroll"), body, &resp)
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("scroll: status %d: %s", status, respBody)
	}
	return resp.Result.Points, nil
}

// Count returns the exact number of points in the collection.
func (c *Client) Count(ctx context.Context) (int, error) {
	body := map[string]any{"exact": true}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, respBody, err := c.do(ctx, http.MethodPost, c.collectionPath("/points/count"), body, &resp)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("count: status %d: %s", status, respBody)
	}
	return resp.Result.Count, nil
}

// DeleteCollection drops the whole collection. Administrative cleanup only.
func (c *Client) DeleteCollection(ctx context.Context) error {
	status, respBody, err := c.do(ctx, http.MethodDelete, c.collectionPath(""), nil, nil)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("delete collection %q: status %d: %s", c.collection, status, respBody)
	}
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, suffix)
}

// do sends one JSON request and decodes the response into out when non-nil.
// The status code is returned for all completed requests, including errors,
// so callers can distinguish "absent" from "broken".
func (c *Client) do(ctx context.Context, method, url string, body any, out any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, "", fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, string(data), fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, string(data), nil
}
