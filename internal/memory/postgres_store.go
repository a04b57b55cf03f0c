package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore appends to conversation_summaries and never updates a row.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("memory: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, summary Summary) error {
	ctx, span := tracer.Start(ctx, "memory.postgres.insert")
	defer span.End()

	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_summaries (id, conversation_id, user_id, summary, key_topics, message_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		summary.ID, summary.ConversationID, summary.UserID, summary.Summary,
		summary.KeyTopics, summary.MessageCount, summary.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: insert summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, conversationID string) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "memory.postgres.latest")
	defer span.End()

	var summary Summary
	err := s.db.QueryRow(ctx, `
		SELECT id, conversation_id, user_id, summary, key_topics, message_count, created_at
		FROM conversation_summaries
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, conversationID,
	).Scan(&summary.ID, &summary.ConversationID, &summary.UserID, &summary.Summary,
		&summary.KeyTopics, &summary.MessageCount, &summary.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("memory: load latest summary: %w", err)
	}
	return &summary, nil
}
