package models

import "fmt"

// AskRequest is a question posed to the assistant. WebResults, when present,
// are scraped hits supplied by the web-search collaborator; they are indexed
// before the answer is synthesized.
type AskRequest struct {
	ConversationID string      `json:"conversation_id,omitempty"`
	Question       string      `json:"question"`
	WebResults     []WebResult `json:"web_results,omitempty"`
	TopK           int         `json:"top_k,omitempty"`
}

// Validate checks the request and normalizes TopK.
func (r *AskRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.TopK > 50 {
		r.TopK = 50
	}
	return nil
}

// AskResponse is the synthesized answer plus the evidence behind it.
type AskResponse struct {
	ConversationID string          `json:"conversation_id"`
	Answer         string          `json:"answer"`
	Results        []SearchResult  `json:"results,omitempty"`
	Citations      []Citation      `json:"citations,omitempty"`
	Ingest         *IngestReport   `json:"ingest,omitempty"`
}
