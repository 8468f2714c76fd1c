package models

// SearchResult is a single nearest-neighbor hit with its normalized payload.
// The fields are the same regardless of whether the underlying point came
// from a document page or a web snippet.
type SearchResult struct {
	Source SourceRef `json:"source"`
	Title  string    `json:"title"`
	Page   int       `json:"page"`
	Score  float64   `json:"score"`
	Text   string    `json:"text"`
}

// IngestReport summarizes one ingestion pass. Written may be lower than
// Embedded when upsert batches failed; those points are retried for free on
// the next run because they were never marked indexed.
type IngestReport struct {
	Candidates    int        `json:"candidates"`
	SkippedEmpty  int        `json:"skipped_empty"`
	Existing      int        `json:"existing"`
	Embedded      int        `json:"embedded"`
	Written       int        `json:"written"`
	FailedBatches int        `json:"failed_batches"`
	Citations     []Citation `json:"citations,omitempty"`
}

// Merge folds another report into this one.
func (r *IngestReport) Merge(other *IngestReport) {
	if other == nil {
		return
	}
	r.Candidates += other.Candidates
	r.SkippedEmpty += other.SkippedEmpty
	r.Existing += other.Existing
	r.Embedded += other.Embedded
	r.Written += other.Written
	r.FailedBatches += other.FailedBatches
	r.Citations = append(r.Citations, other.Citations...)
}
