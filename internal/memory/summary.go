// Package memory keeps rolling conversation summaries: an LLM summarizer with
// keyword topic tags, an append-only Postgres store with a Redis latest-summary
// cache, and a queue-backed worker that runs summarization off the request path.
package memory

import (
	"context"
	"time"
)

// Message is one turn of the bounded history window.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Summary is an append-only record; the newest per conversation wins on read.
type Summary struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Summary        string    `json:"summary"`
	KeyTopics      []string  `json:"keyTopics"`
	MessageCount   int       `json:"messageCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store persists summaries. Latest returns (nil, nil) when the conversation has none.
type Store interface {
	Insert(ctx context.Context, summary Summary) error
	Latest(ctx context.Context, conversationID string) (*Summary, error)
}
