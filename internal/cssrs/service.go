package cssrs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/observability/metrics"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// ErrNoSession is returned when answering a conversation with no screening in progress.
var ErrNoSession = errors.New("cssrs: no screening in progress")

// Progress describes a screening after an answer was recorded. Exactly one of
// NextQuestion and Verdict is set.
type Progress struct {
	State        State     `json:"state"`
	Answered     int       `json:"answered"`
	NextQuestion *Question `json:"nextQuestion,omitempty"`
	Verdict      *Verdict  `json:"verdict,omitempty"`
}

// Service drives screening sessions for conversations.
type Service struct {
	store   SessionStore
	logger  *logging.Logger
	metrics *metrics.CompanionMetrics
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithServiceMetrics(m *metrics.CompanionMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store SessionStore, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("cssrs: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a screening for the conversation and returns the first unanswered
// question. When a screening is already in progress it is left untouched.
func (s *Service) Start(ctx context.Context, conversationID, userID string, trigger crisis.RiskLevel) (*Question, error) {
	existing, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		next, err := NextQuestion(existing.Responses)
		if err != nil {
			return nil, err
		}
		if next != nil {
			return next, nil
		}
	}

	now := s.now().UTC()
	session := &Session{
		ConversationID: conversationID,
		UserID:         userID,
		Responses:      []Response{},
		TriggerRisk:    trigger,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.ObserveScreening("started", string(trigger))
	s.logger.Info("screening started",
		"conversation_id", conversationID,
		"trigger_risk", trigger,
	)
	first := questionBank[0]
	return &first, nil
}

// Active returns the in-progress session, or nil when none exists.
func (s *Service) Active(ctx context.Context, conversationID string) (*Session, error) {
	return s.store.Get(ctx, conversationID)
}

// Answer records the answer to questionNumber. Once the sixth answer lands the
// verdict is computed and the session is removed.
func (s *Service) Answer(ctx context.Context, conversationID string, questionNumber int, answer Answer) (Progress, error) {
	session, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Progress{}, err
	}
	if session == nil {
		return Progress{}, ErrNoSession
	}

	answered := len(session.Responses)
	responses, err := Append(session.Responses, Response{QuestionNumber: questionNumber, Answer: answer})
	if err != nil {
		s.logger.Warn("screening answer rejected",
			"conversation_id", conversationID,
			"question_number", questionNumber,
			"error", err,
		)
		return Progress{}, err
	}

	next, err := NextQuestion(responses)
	if err != nil {
		return Progress{}, err
	}
	if next != nil {
		session.Responses = responses
		session.UpdatedAt = s.now().UTC()
		if err := s.store.Advance(ctx, session, answered); err != nil {
			s.logStale(conversationID, questionNumber, err)
			return Progress{}, err
		}
		return Progress{
			State:        StateOf(true, responses),
			Answered:     len(responses),
			NextQuestion: next,
		}, nil
	}

	verdict, err := s.finish(ctx, session, answered, responses, "completed")
	if err != nil {
		s.logStale(conversationID, questionNumber, err)
		return Progress{}, err
	}
	return Progress{
		State:    StateComplete,
		Answered: len(responses),
		Verdict:  &verdict,
	}, nil
}

func (s *Service) logStale(conversationID string, questionNumber int, err error) {
	if errors.Is(err, ErrStaleSession) {
		s.logger.Warn("screening answer lost a race with a concurrent answer",
			"conversation_id", conversationID,
			"question_number", questionNumber,
		)
	}
}

// Conclude computes a verdict over the answers given so far and closes the
// session, for a user who stops before the last question.
func (s *Service) Conclude(ctx context.Context, conversationID string) (Verdict, error) {
	session, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Verdict{}, err
	}
	if session == nil {
		return Verdict{}, ErrNoSession
	}
	return s.finish(ctx, session, len(session.Responses), session.Responses, "concluded_early")
}

// finish closes the session only if it still holds answered responses.
func (s *Service) finish(ctx context.Context, session *Session, answered int, responses []Response, event string) (Verdict, error) {
	verdict, err := Assess(responses)
	if err != nil {
		return Verdict{}, err
	}
	if err := s.store.Delete(ctx, session.ConversationID, answered); err != nil {
		return Verdict{}, fmt.Errorf("cssrs: close session: %w", err)
	}
	s.metrics.ObserveScreening(event, string(verdict.FinalRiskLevel))
	s.logger.Info("screening finished",
		"conversation_id", session.ConversationID,
		"event", event,
		"answered", len(responses),
		"final_risk_level", verdict.FinalRiskLevel,
		"should_alert", verdict.ShouldAlert,
	)
	return verdict, nil
}
