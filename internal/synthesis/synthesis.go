// Package synthesis turns retrieved context into a written answer.
package synthesis

import (
	"context"

	"github.com/hyperjump/kotae/internal/chunk"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
)

// Request carries everything the synthesizer may draw on: the question,
// bounded context blocks, the document source list, raw retrieval hits,
// and prior conversation exchanges.
type Request struct {
	Question  string
	Blocks    []chunk.Block
	Citations []models.Citation
	Results   []models.SearchResult
	History   []memory.Exchange
}

// Synthesizer produces an answer from a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

// Disabled is a Synthesizer that produces no answer text. Used when no
// chat provider is configured; callers still get search results and
// citations.
type Disabled struct{}

func (Disabled) Synthesize(ctx context.Context, req Request) (string, error) {
	return "", nil
}
