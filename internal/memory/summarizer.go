package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/internal/observability/metrics"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

var tracer = otel.Tracer("wellness.internal.memory")

// SummaryWindow is the number of trailing messages a summary covers and the
// minimum history length before one is written.
const SummaryWindow = 10

const summaryPrompt = `You maintain continuity notes for a supportive mental-wellness companion.
Summarize the conversation excerpt below in 3 to 4 sentences. Capture what the user is dealing with, how they are feeling, any coping strategies discussed and anything they asked to come back to.
Write in the third person ("The user..."). Do not add advice, diagnoses or details that are not in the excerpt.`

// ErrEmptySummary is returned when the model produced no summary text.
var ErrEmptySummary = errors.New("memory: model returned an empty summary")

// Summarizer writes rolling summaries and serves the latest one.
type Summarizer struct {
	client  llm.Client
	model   string
	store   Store
	logger  *logging.Logger
	metrics *metrics.CompanionMetrics
	timeout time.Duration
	now     func() time.Time
}

type SummarizerOption func(*Summarizer)

func WithSummaryTimeout(timeout time.Duration) SummarizerOption {
	return func(s *Summarizer) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithSummarizerMetrics(m *metrics.CompanionMetrics) SummarizerOption {
	return func(s *Summarizer) {
		s.metrics = m
	}
}

func NewSummarizer(client llm.Client, model string, store Store, logger *logging.Logger, opts ...SummarizerOption) *Summarizer {
	if client == nil {
		panic("memory: llm client cannot be nil")
	}
	if store == nil {
		panic("memory: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Summarizer{
		client:  client,
		model:   model,
		store:   store,
		logger:  logger,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSummary returns the newest summary text for a conversation.
func (s *Summarizer) GetSummary(ctx context.Context, conversationID string) (string, bool, error) {
	latest, err := s.store.Latest(ctx, conversationID)
	if err != nil {
		return "", false, err
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.Summary, true, nil
}

// MaybeSummarize is a no-op below SummaryWindow messages. Otherwise it summarizes
// the last SummaryWindow messages and appends a new summary row.
func (s *Summarizer) MaybeSummarize(ctx context.Context, conversationID, userID string, messages []Message) (*Summary, error) {
	if len(messages) < SummaryWindow {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "memory.summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("wellness.memory.message_count", len(messages)))

	window := messages[len(messages)-SummaryWindow:]
	text, err := s.summarize(ctx, window)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveSummary("failed")
		return nil, err
	}

	summary := Summary{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Summary:        text,
		KeyTopics:      TagTopics(window),
		MessageCount:   len(messages),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Insert(ctx, summary); err != nil {
		span.RecordError(err)
		s.metrics.ObserveSummary("persist_failed")
		s.metrics.ObservePersistenceFailure("summary")
		return nil, err
	}
	s.metrics.ObserveSummary("written")
	s.logger.Info("conversation summary written",
		"conversation_id", conversationID,
		"message_count", summary.MessageCount,
		"topics", strings.Join(summary.KeyTopics, ","),
	)
	return &summary, nil
}

func (s *Summarizer) summarize(ctx context.Context, window []Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var transcript strings.Builder
	for _, m := range window {
		role := "User"
		if m.Role == llm.RoleAssistant {
			role = "Companion"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", role, strings.TrimSpace(m.Content))
	}

	start := time.Now()
	resp, err := s.client.Complete(callCtx, llm.Request{
		Model:       s.model,
		System:      []string{summaryPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: transcript.String()}},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		s.metrics.ObserveLLM("summary", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("memory: summarize: %w", err)
	}
	s.metrics.ObserveLLM("summary", "ok", time.Since(start).Seconds())
	s.metrics.ObserveTokens("summary", resp.Usage.InputTokens, resp.Usage.OutputTokens)

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptySummary
	}
	return text, nil
}
