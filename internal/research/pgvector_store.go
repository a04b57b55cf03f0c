package research

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGVectorStore searches research_papers with pgvector cosine distance.
type PGVectorStore struct {
	db DB
}

func NewPGVectorStore(db DB) *PGVectorStore {
	if db == nil {
		panic("research: db cannot be nil")
	}
	return &PGVectorStore{db: db}
}

// Search returns papers with similarity (1 - cosine distance) at or above the floor.
func (s *PGVectorStore) Search(ctx context.Context, query SearchQuery) ([]ScoredPaper, error) {
	ctx, span := tracer.Start(ctx, "research.pgvector.search")
	defer span.End()
	span.SetAttributes(attribute.Int("wellness.research.limit", query.Limit))

	rows, err := s.db.Query(ctx, `
		SELECT id, title, COALESCE(authors, ''), COALESCE(year, 0), COALESCE(topic, ''), content,
		       COALESCE(summary, ''), COALESCE(source_url, ''), 1 - (embedding <=> $1) AS similarity
		FROM research_papers
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(query.Embedding), query.MinSimilarity, query.Limit,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("research: search papers: %w", err)
	}
	defer rows.Close()

	var out []ScoredPaper
	for rows.Next() {
		var p ScoredPaper
		if err := rows.Scan(&p.ID, &p.Title, &p.Authors, &p.Year, &p.Topic, &p.Content, &p.Summary, &p.SourceURL, &p.Similarity); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("research: scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("research: iterate papers: %w", err)
	}
	return out, nil
}

// Insert stores a paper with its embedding. Existing ids are left untouched.
func (s *PGVectorStore) Insert(ctx context.Context, p Paper, embedding []float32) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO research_papers (id, title, authors, year, topic, content, summary, source_url, embedding)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, 0), NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Title, p.Authors, p.Year, p.Topic, p.Content, p.Summary, p.SourceURL, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("research: insert paper: %w", err)
	}
	return nil
}
