package companion

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// SQLTurnStore persists chat turns to Postgres through database/sql.
type SQLTurnStore struct {
	db *sql.DB
}

func NewSQLTurnStore(db *sql.DB) *SQLTurnStore {
	if db == nil {
		panic("companion: sql db cannot be nil")
	}
	return &SQLTurnStore{db: db}
}

// AppendTurns writes all turns in one transaction.
func (s *SQLTurnStore) AppendTurns(ctx context.Context, turns ...ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("companion: begin turn tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range turns {
		research := t.ResearchUsed
		if research == nil {
			research = []string{}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_turns (id, conversation_id, user_id, role, content, incomplete, risk_level, research_used, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
			t.ID, t.ConversationID, t.UserID, t.Role, t.Content, t.Incomplete, t.RiskLevel, pq.Array(research), t.CreatedAt,
		); err != nil {
			return fmt.Errorf("companion: insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("companion: commit turns: %w", err)
	}
	return nil
}

// Recent returns up to limit turns for a conversation, oldest first.
func (s *SQLTurnStore) Recent(ctx context.Context, conversationID string, limit int) ([]ChatTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, role, content, incomplete,
		       COALESCE(risk_level, ''), research_used, created_at
		FROM (
			SELECT * FROM chat_turns WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent
		ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("companion: query turns: %w", err)
	}
	defer rows.Close()

	out := []ChatTurn{}
	for rows.Next() {
		var t ChatTurn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.Role, &t.Content, &t.Incomplete,
			&t.RiskLevel, pq.Array(&t.ResearchUsed), &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("companion: scan turn: %w", err)
		}
		if t.ResearchUsed == nil {
			t.ResearchUsed = []string{}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemoryTurnStore keeps turns in process, for local runs and tests.
type MemoryTurnStore struct {
	mu    sync.Mutex
	turns map[string][]ChatTurn
}

func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{turns: make(map[string][]ChatTurn)}
}

func (s *MemoryTurnStore) AppendTurns(_ context.Context, turns ...ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range turns {
		s.turns[t.ConversationID] = append(s.turns[t.ConversationID], t)
	}
	return nil
}

func (s *MemoryTurnStore) Recent(_ context.Context, conversationID string, limit int) ([]ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.turns[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]ChatTurn, len(all))
	copy(out, all)
	return out, nil
}
