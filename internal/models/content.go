// Package models defines core data structures for content units, ingestion, and search results.
package models

// SourceKind distinguishes where a piece of indexed content came from.
// The values are stored verbatim in the index payload.
type SourceKind string

const (
	// KindDocument is a page extracted from a document (PDF or plain text).
	KindDocument SourceKind = "pdf"
	// KindWeb is a snippet scraped from a web result.
	KindWeb SourceKind = "web"
)

// SourceRef identifies the parent source of indexed content: a filename for
// documents, a URL for web snippets. Kind tells which one Ref holds, so
// callers never have to guess between key names.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref"`
}

// DocumentRef returns a SourceRef for a document filename.
func DocumentRef(filename string) SourceRef {
	return SourceRef{Kind: KindDocument, Ref: filename}
}

// WebRef returns a SourceRef for a web URL.
func WebRef(url string) SourceRef {
	return SourceRef{Kind: KindWeb, Ref: url}
}

// ContentUnit is one atomic piece of source text heading for the index:
// a single document page or a single 500-character snippet page.
type ContentUnit struct {
	Source SourceRef
	Title  string
	Page   int // 1-based
	Text   string
	// Score is the externally supplied relevance score for web snippets.
	// Always 0 for document pages.
	Score float64
}

// PageText is one extracted page of a document.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// DocumentInput is a document handed over by an acquisition collaborator:
// a stable source identifier (filename), a human-readable title, and the
// non-empty pages that were extracted from it.
type DocumentInput struct {
	SourceID string     `json:"source_id"`
	Title    string     `json:"title"`
	Pages    []PageText `json:"pages"`
}

// WebResult is a scraped web search hit handed over by an acquisition
// collaborator.
type WebResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Citation is human-facing source attribution surfaced to callers:
// for documents PageRange holds a compressed range string ("1-3,5"),
// for web snippets Page holds the snippet page number.
type Citation struct {
	Source    SourceRef `json:"source"`
	Title     string    `json:"title"`
	PageRange string    `json:"page_range,omitempty"`
	Page      int       `json:"page,omitempty"`
}
