package cssrs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wellness-companion/internal/crisis"
)

// DefaultSessionTTL bounds how long an unfinished screening is kept.
const DefaultSessionTTL = 24 * time.Hour

// Session is an in-progress screening for one conversation.
type Session struct {
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	Responses      []Response       `json:"responses"`
	TriggerRisk    crisis.RiskLevel `json:"triggerRisk"`
	StartedAt      time.Time        `json:"startedAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// SessionStore persists screening sessions. Get returns (nil, nil) when none exists.
//
// Advance and Delete are conditional on the stored session still holding
// exactly answered responses, so of two racing answers only one lands. The
// loser gets ErrStaleSession; a missing session yields ErrNoSession.
type SessionStore interface {
	Get(ctx context.Context, conversationID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Advance(ctx context.Context, session *Session, answered int) error
	Delete(ctx context.Context, conversationID string, answered int) error
}

// ErrStaleSession reports that another answer changed the session first.
var ErrStaleSession = fmt.Errorf("%w: session changed by a concurrent answer", ErrOutOfOrder)

// RedisSessionStore keeps sessions as JSON values with a TTL.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("cssrs: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("wellness.internal.cssrs.sessions"),
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, conversationID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "cssrs.load_session")
	defer span.End()

	session, err := loadSession(s.redis.Get(ctx, sessionKey(conversationID)))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return session, nil
}

func loadSession(cmd *redis.StringCmd) (*Session, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cssrs: failed to load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("cssrs: failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "cssrs.save_session")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cssrs: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ConversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cssrs: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Advance(ctx context.Context, session *Session, answered int) error {
	ctx, span := s.tracer.Start(ctx, "cssrs.advance_session")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cssrs: failed to marshal session: %w", err)
	}
	err = s.guarded(ctx, session.ConversationID, answered, func(pipe redis.Pipeliner, key string) {
		pipe.Set(ctx, key, data, s.ttl)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, conversationID string, answered int) error {
	ctx, span := s.tracer.Start(ctx, "cssrs.delete_session")
	defer span.End()

	err := s.guarded(ctx, conversationID, answered, func(pipe redis.Pipeliner, key string) {
		pipe.Del(ctx, key)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// guarded runs write in a MULTI block under WATCH, after checking that the
// stored session still has answered responses.
func (s *RedisSessionStore) guarded(ctx context.Context, conversationID string, answered int, write func(redis.Pipeliner, string)) error {
	key := sessionKey(conversationID)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := loadSession(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNoSession
		}
		if len(current.Responses) != answered {
			return ErrStaleSession
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe, key)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrStaleSession
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrOutOfOrder):
		return err
	default:
		return fmt.Errorf("cssrs: failed to update session: %w", err)
	}
}

func sessionKey(conversationID string) string {
	return fmt.Sprintf("cssrs:session:%s", conversationID)
}

// MemorySessionStore is a process-local store for development and tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (s *MemorySessionStore) Get(_ context.Context, conversationID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[conversationID]
	if !ok {
		return nil, nil
	}
	session.Responses = append([]Response(nil), session.Responses...)
	return &session, nil
}

func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *session
	stored.Responses = append([]Response(nil), session.Responses...)
	s.sessions[session.ConversationID] = stored
	return nil
}

func (s *MemorySessionStore) Advance(_ context.Context, session *Session, answered int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(session.ConversationID, answered); err != nil {
		return err
	}
	stored := *session
	stored.Responses = append([]Response(nil), session.Responses...)
	s.sessions[session.ConversationID] = stored
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, conversationID string, answered int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(conversationID, answered); err != nil {
		return err
	}
	delete(s.sessions, conversationID)
	return nil
}

// check must be called with mu held.
func (s *MemorySessionStore) check(conversationID string, answered int) error {
	current, ok := s.sessions[conversationID]
	if !ok {
		return ErrNoSession
	}
	if len(current.Responses) != answered {
		return ErrStaleSession
	}
	return nil
}
