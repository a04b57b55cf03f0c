package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellness-companion/pkg/logging"
)

const latestSummaryTTL = 24 * time.Hour

// CachedStore keeps the newest summary per conversation in Redis in front of
// another Store. Cache errors are logged and fall through to the backing store.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedStore(next Store, client *redis.Client, logger *logging.Logger) *CachedStore {
	if next == nil {
		panic("memory: backing store cannot be nil")
	}
	if client == nil {
		panic("memory: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{next: next, redis: client, ttl: latestSummaryTTL, logger: logger}
}

func (s *CachedStore) Insert(ctx context.Context, summary Summary) error {
	if err := s.next.Insert(ctx, summary); err != nil {
		return err
	}
	s.cache(ctx, &summary)
	return nil
}

func (s *CachedStore) Latest(ctx context.Context, conversationID string) (*Summary, error) {
	data, err := s.redis.Get(ctx, latestSummaryKey(conversationID)).Bytes()
	switch {
	case err == nil:
		var summary Summary
		if jsonErr := json.Unmarshal(data, &summary); jsonErr == nil {
			return &summary, nil
		}
		s.logger.Warn("discarding undecodable cached summary", "conversation_id", conversationID)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("summary cache read failed", "error", err, "conversation_id", conversationID)
	}

	summary, err := s.next.Latest(ctx, conversationID)
	if err != nil || summary == nil {
		return summary, err
	}
	s.cache(ctx, summary)
	return summary, nil
}

func (s *CachedStore) cache(ctx context.Context, summary *Summary) {
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, latestSummaryKey(summary.ConversationID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("summary cache write failed", "error", err, "conversation_id", summary.ConversationID)
	}
}

func latestSummaryKey(conversationID string) string {
	return fmt.Sprintf("memory:summary:%s", conversationID)
}
