// Package research retrieves clinical research to ground companion replies:
// topic-aware query expansion, multi-query vector search, hybrid re-ranking and
// prompt formatting.
package research

import "context"

// Paper is a research record from the vector store. Year is zero when unknown.
type Paper struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Authors   string `json:"authors,omitempty"`
	Year      int    `json:"year,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Content   string `json:"content"`
	Summary   string `json:"summary,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// ScoredPaper carries the query-time scores for one candidate. The scores only
// mean something within a single ranking pass.
type ScoredPaper struct {
	Paper
	Similarity    float64 `json:"similarity"`
	KeywordScore  float64 `json:"keywordScore"`
	CitationCount int     `json:"citationCount"`
	QualityScore  float64 `json:"qualityScore"`
}

// SearchQuery is a single similarity search against the paper store.
type SearchQuery struct {
	Embedding     []float32
	MinSimilarity float64
	Limit         int
}

// Store is the vector similarity search boundary. Results carry Similarity.
type Store interface {
	Search(ctx context.Context, query SearchQuery) ([]ScoredPaper, error)
}
