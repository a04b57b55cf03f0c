package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/internal/notify"
)

// AnswerScreening records one screening answer. It returns the next question
// or, after the last one, the verdict reply that stands in for generation.
func (o *Orchestrator) AnswerScreening(ctx context.Context, ans ScreeningAnswer) (*ScreeningReply, error) {
	ctx, span := tracer.Start(ctx, "companion.answer_screening")
	defer span.End()
	span.SetAttributes(attribute.Int("wellness.cssrs.question", ans.QuestionNumber))

	if o.screener == nil {
		return nil, ErrScreeningUnavailable
	}
	answer, err := cssrs.ParseAnswer(ans.Answer)
	if err != nil {
		return nil, err
	}
	if err := o.checkScreeningOwner(ctx, ans.ConversationID, ans.UserID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	progress, err := o.screener.Answer(ctx, ans.ConversationID, ans.QuestionNumber, answer)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	userTurn := o.screeningTurn(ans.ConversationID, ans.UserID, llm.RoleUser,
		fmt.Sprintf("Screening question %d: %s", ans.QuestionNumber, answer))

	if progress.Verdict == nil {
		reply := &ScreeningReply{NextQuestion: progress.NextQuestion}
		if progress.NextQuestion != nil {
			reply.Response = progress.NextQuestion.Text
		}
		o.appendTurns(ctx, userTurn, o.screeningTurn(ans.ConversationID, ans.UserID, llm.RoleAssistant, reply.Response))
		return reply, nil
	}
	return o.verdictReply(ctx, ans.ConversationID, ans.UserID, *progress.Verdict, userTurn), nil
}

// ConcludeScreening closes an open screening early and returns the verdict over
// the answers given so far.
func (o *Orchestrator) ConcludeScreening(ctx context.Context, conversationID, userID string) (*ScreeningReply, error) {
	ctx, span := tracer.Start(ctx, "companion.conclude_screening")
	defer span.End()

	if o.screener == nil {
		return nil, ErrScreeningUnavailable
	}
	if err := o.checkScreeningOwner(ctx, conversationID, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	verdict, err := o.screener.Conclude(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o.verdictReply(ctx, conversationID, userID, verdict), nil
}

// checkScreeningOwner hides another user's screening behind ErrNoSession.
// Anonymous sessions and callers are not compared.
func (o *Orchestrator) checkScreeningOwner(ctx context.Context, conversationID, userID string) error {
	session, err := o.screener.Active(ctx, conversationID)
	if err != nil {
		return err
	}
	if session == nil {
		return cssrs.ErrNoSession
	}
	if session.UserID != "" && userID != "" && session.UserID != userID {
		o.logger.Warn("screening access denied for non-owner", "conversation_id", conversationID)
		return cssrs.ErrNoSession
	}
	return nil
}

func (o *Orchestrator) verdictReply(ctx context.Context, conversationID, userID string, verdict cssrs.Verdict, turns ...ChatTurn) *ScreeningReply {
	reply := &ScreeningReply{
		Response:    crisis.BuildVerdictResponse(verdict.FinalRiskLevel, verdict.Recommendation),
		Complete:    true,
		Verdict:     &verdict,
		ShouldAlert: verdict.ShouldAlert,
	}
	if verdict.ShouldAlert {
		o.alert(ctx, notify.CrisisAlert{
			Kind:           notify.AlertScreening,
			ConversationID: conversationID,
			UserID:         userID,
			RiskLevel:      verdict.FinalRiskLevel,
			Recommendation: verdict.Recommendation,
			OccurredAt:     o.now().UTC(),
		})
	}
	o.audit(ctx, conversationID, func(bg context.Context) error {
		return o.auditor.LogScreeningVerdict(bg, conversationID, userID, verdict)
	})
	verdictTurn := o.screeningTurn(conversationID, userID, llm.RoleAssistant, reply.Response)
	verdictTurn.RiskLevel = string(verdict.FinalRiskLevel)
	o.appendTurns(ctx, append(turns, verdictTurn)...)
	return reply
}

func (o *Orchestrator) screeningTurn(conversationID, userID, role, content string) ChatTurn {
	return ChatTurn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        strings.TrimSpace(content),
		ResearchUsed:   []string{},
		CreatedAt:      o.now().UTC(),
	}
}
