// Package llm holds the generative-model and embedding provider clients shared by
// the crisis detector, conversation memory and response orchestrator.
package llm

import (
	"context"

	"github.com/invopop/jsonschema"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a provider-neutral completion request.
//
// When JSONSchema is set the provider is asked to answer with a single JSON object
// matching it; Response.Text then holds the raw JSON.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	TopP        float32
	JSONSchema  *jsonschema.Schema
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// StreamChunk is one incremental piece of a streamed completion. The final chunk
// has Done set and carries either Usage or Error.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage TokenUsage
	Error error
}

// sendChunk delivers c unless ctx ends first. A false return means the
// consumer is gone and the producer must stop.
func sendChunk(ctx context.Context, chunks chan<- StreamChunk, c StreamChunk) bool {
	select {
	case chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// Client is the generative model provider boundary.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
