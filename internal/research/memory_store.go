package research

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/wolfman30/wellness-companion/internal/llm"
)

// MemoryStore keeps paper embeddings in memory and scores them by cosine similarity.
type MemoryStore struct {
	embedder llm.Embedder

	mu     sync.RWMutex
	papers []storedPaper
}

type storedPaper struct {
	paper     Paper
	embedding []float32
}

func NewMemoryStore(embedder llm.Embedder) *MemoryStore {
	if embedder == nil {
		panic("research: embedder cannot be nil")
	}
	return &MemoryStore{embedder: embedder}
}

// AddPapers embeds title, summary and content of each paper and stores it.
func (s *MemoryStore) AddPapers(ctx context.Context, papers ...Paper) error {
	if len(papers) == 0 {
		return nil
	}
	texts := make([]string, len(papers))
	for i, p := range papers {
		texts[i] = embeddingText(p)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(papers) {
		return errors.New("research: embedding response size mismatch")
	}
	for i, p := range papers {
		if err := s.Insert(ctx, p, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Insert stores a pre-embedded paper. Existing ids are left untouched.
func (s *MemoryStore) Insert(_ context.Context, p Paper, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.papers {
		if existing.paper.ID == p.ID {
			return nil
		}
	}
	s.papers = append(s.papers, storedPaper{paper: p, embedding: embedding})
	return nil
}

func (s *MemoryStore) Search(_ context.Context, query SearchQuery) ([]ScoredPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ScoredPaper
	for _, doc := range s.papers {
		score := cosineSimilarity(query.Embedding, doc.embedding)
		if score < query.MinSimilarity {
			continue
		}
		results = append(results, ScoredPaper{Paper: doc.paper, Similarity: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
