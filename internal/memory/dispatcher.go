package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// SummaryJob asks a worker to summarize a conversation window.
type SummaryJob struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Messages       []Message `json:"messages"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Scheduler accepts summarization work from the request path.
type Scheduler interface {
	Schedule(ctx context.Context, job SummaryJob) error
}

func encodeJob(job SummaryJob) (SummaryJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return SummaryJob{}, "", fmt.Errorf("memory: failed to encode job: %w", err)
	}
	return job, string(body), nil
}

// Dispatcher publishes summary jobs to a queue for Worker to consume.
type Dispatcher struct {
	queue  queueClient
	logger *logging.Logger
}

func NewDispatcher(queue queueClient, logger *logging.Logger) *Dispatcher {
	if queue == nil {
		panic("memory: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{queue: queue, logger: logger}
}

func (d *Dispatcher) Schedule(ctx context.Context, job SummaryJob) error {
	job, body, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := d.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("memory: enqueue summary job: %w", err)
	}
	d.logger.Debug("summary job enqueued",
		"job_id", job.ID,
		"conversation_id", job.ConversationID,
		"messages", len(job.Messages),
	)
	return nil
}

// InlineScheduler summarizes synchronously on the caller's goroutine. The
// caller's deadline is dropped; the summarizer applies its own timeout.
type InlineScheduler struct {
	summarizer *Summarizer
}

func NewInlineScheduler(summarizer *Summarizer) *InlineScheduler {
	if summarizer == nil {
		panic("memory: summarizer cannot be nil")
	}
	return &InlineScheduler{summarizer: summarizer}
}

func (s *InlineScheduler) Schedule(ctx context.Context, job SummaryJob) error {
	_, err := s.summarizer.MaybeSummarize(context.WithoutCancel(ctx), job.ConversationID, job.UserID, job.Messages)
	return err
}
