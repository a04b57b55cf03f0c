package memory

import (
	"context"
	"sync"
)

// InMemoryStore is a process-local Store for development and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	summaries map[string][]Summary
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{summaries: make(map[string][]Summary)}
}

func (s *InMemoryStore) Insert(_ context.Context, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.KeyTopics = append([]string(nil), summary.KeyTopics...)
	s.summaries[summary.ConversationID] = append(s.summaries[summary.ConversationID], summary)
	return nil
}

func (s *InMemoryStore) Latest(_ context.Context, conversationID string) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Summary
	for i := range s.summaries[conversationID] {
		candidate := s.summaries[conversationID][i]
		if latest == nil || !candidate.CreatedAt.Before(latest.CreatedAt) {
			c := candidate
			latest = &c
		}
	}
	return latest, nil
}

// History returns every summary written for a conversation, oldest first.
func (s *InMemoryStore) History(conversationID string) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Summary(nil), s.summaries[conversationID]...)
}
