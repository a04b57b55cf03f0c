package companion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/internal/memory"
	"github.com/wolfman30/wellness-companion/internal/notify"
	"github.com/wolfman30/wellness-companion/internal/observability/metrics"
	"github.com/wolfman30/wellness-companion/internal/research"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

var tracer = otel.Tracer("wellness.internal.companion")

const (
	historyWindow    = 5
	defaultMaxPapers = 3
)

const systemPrompt = `You are a warm, supportive mental-wellness companion. You are not a therapist and you do not diagnose or prescribe.
Listen closely, reflect what the user is feeling, and offer practical, evidence-informed coping ideas when they fit.
Keep replies concise and conversational. Ask at most one gentle follow-up question.
When research is provided, use it only where it is relevant and cite it inline in (Author, Year) style. Never invent studies or statistics.
If the user mentions thoughts of self-harm or suicide, encourage them to contact the 988 Suicide & Crisis Lifeline.`

// ResearchRetriever is the research engine surface the orchestrator uses.
type ResearchRetriever interface {
	Retrieve(ctx context.Context, message string, maxPapers int, opts ...research.RetrieveOption) ([]research.ScoredPaper, error)
}

// SummaryReader returns the latest conversation summary.
type SummaryReader interface {
	GetSummary(ctx context.Context, conversationID string) (string, bool, error)
}

// Screener is the C-SSRS session surface.
type Screener interface {
	Start(ctx context.Context, conversationID, userID string, trigger crisis.RiskLevel) (*cssrs.Question, error)
	Active(ctx context.Context, conversationID string) (*cssrs.Session, error)
	Answer(ctx context.Context, conversationID string, questionNumber int, answer cssrs.Answer) (cssrs.Progress, error)
	Conclude(ctx context.Context, conversationID string) (cssrs.Verdict, error)
}

// Alerter notifies the care team.
type Alerter interface {
	NotifyCrisis(ctx context.Context, alert notify.CrisisAlert) error
}

// TurnStore persists chat turns.
type TurnStore interface {
	AppendTurns(ctx context.Context, turns ...ChatTurn) error
}

// SafetyAuditor records crisis routing and screening outcomes.
type SafetyAuditor interface {
	LogCrisisDetected(ctx context.Context, conversationID, userID string, assessment crisis.Assessment) error
	LogScreeningVerdict(ctx context.Context, conversationID, userID string, verdict cssrs.Verdict) error
}

// Orchestrator produces replies for inbound user messages.
type Orchestrator struct {
	detector  crisis.Classifier
	client    llm.Client
	model     string
	research  ResearchRetriever
	summaries SummaryReader
	scheduler memory.Scheduler
	screener  Screener
	alerter   Alerter
	turns     TurnStore
	auditor   SafetyAuditor
	logger    *logging.Logger
	metrics   *metrics.CompanionMetrics

	maxPapers         int
	maxTokens         int32
	temperature       float32
	generationTimeout time.Duration
	backgroundTimeout time.Duration
	now               func() time.Time

	background sync.WaitGroup
}

type Option func(*Orchestrator)

func WithResearch(r ResearchRetriever) Option {
	return func(o *Orchestrator) { o.research = r }
}

func WithSummaries(s SummaryReader) Option {
	return func(o *Orchestrator) { o.summaries = s }
}

func WithSummaryScheduler(s memory.Scheduler) Option {
	return func(o *Orchestrator) { o.scheduler = s }
}

func WithScreener(s Screener) Option {
	return func(o *Orchestrator) { o.screener = s }
}

func WithAlerter(a Alerter) Option {
	return func(o *Orchestrator) { o.alerter = a }
}

func WithTurnStore(t TurnStore) Option {
	return func(o *Orchestrator) { o.turns = t }
}

func WithAuditor(a SafetyAuditor) Option {
	return func(o *Orchestrator) { o.auditor = a }
}

func WithMetrics(m *metrics.CompanionMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithMaxPapers caps how many papers are placed in the prompt.
func WithMaxPapers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPapers = n
		}
	}
}

// WithGenerationTimeout bounds each generation call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.generationTimeout = d
		}
	}
}

// WithBackgroundTimeout bounds persistence, alerting and summary dispatch.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.backgroundTimeout = d
		}
	}
}

func NewOrchestrator(detector crisis.Classifier, client llm.Client, model string, logger *logging.Logger, opts ...Option) *Orchestrator {
	if detector == nil {
		panic("companion: crisis detector cannot be nil")
	}
	if client == nil {
		panic("companion: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		detector:          detector,
		client:            client,
		model:             model,
		logger:            logger,
		maxPapers:         defaultMaxPapers,
		maxTokens:         700,
		temperature:       0.7,
		generationTimeout: 60 * time.Second,
		backgroundTimeout: 5 * time.Second,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Wait blocks until background persistence, alerts and summary dispatches finish.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// Respond runs the full pipeline for one message. The crisis check always
// completes before any retrieval or generation starts.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "companion.respond")
	defer span.End()

	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, ErrEmptyMessage
	}
	if resp, handled := o.gate(ctx, req); handled {
		span.SetAttributes(attribute.Bool("wellness.companion.short_circuit", true))
		return resp, nil
	}

	prompt, papers := o.prepare(ctx, req)

	genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()
	start := time.Now()
	out, err := o.client.Complete(genCtx, prompt)
	elapsed := time.Since(start).Seconds()
	reply := strings.TrimSpace(out.Text)
	if err != nil || reply == "" {
		o.metrics.ObserveLLM("generate", "error", elapsed)
		if err == nil {
			err = fmt.Errorf("empty completion")
		}
		span.RecordError(err)
		o.logger.Error("response generation failed", "error", err, "conversation_id", req.ConversationID)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	o.metrics.ObserveLLM("generate", "ok", elapsed)
	o.metrics.ObserveTokens("generate", out.Usage.InputTokens, out.Usage.OutputTokens)

	resp := &Response{
		Response:     reply,
		ResearchUsed: paperTitles(papers),
	}
	o.finish(ctx, req, resp, crisis.RiskNone)
	return resp, nil
}

// RespondStream behaves like Respond but hands generated text to onChunk as it
// arrives. A stream cut short after producing text returns the partial reply
// with Incomplete set; one that produced nothing fails with ErrGenerationFailed.
func (o *Orchestrator) RespondStream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error) {
	ctx, span := tracer.Start(ctx, "companion.respond_stream")
	defer span.End()

	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, ErrEmptyMessage
	}
	if resp, handled := o.gate(ctx, req); handled {
		if err := onChunk(resp.Response); err != nil {
			o.logger.Warn("failed to deliver crisis response chunk", "error", err, "conversation_id", req.ConversationID)
		}
		return resp, nil
	}

	prompt, papers := o.prepare(ctx, req)

	genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()
	start := time.Now()
	stream, err := o.client.CompleteStream(genCtx, prompt)
	if err != nil {
		o.metrics.ObserveLLM("generate_stream", "error", time.Since(start).Seconds())
		span.RecordError(err)
		o.logger.Error("response stream failed to start", "error", err, "conversation_id", req.ConversationID)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	var (
		text      strings.Builder
		streamErr error
		done      bool
		usage     llm.TokenUsage
	)
	for chunk := range stream {
		if chunk.Error != nil {
			streamErr = chunk.Error
			break
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if err := onChunk(chunk.Text); err != nil {
				streamErr = fmt.Errorf("deliver chunk: %w", err)
				break
			}
		}
		if chunk.Done {
			usage = chunk.Usage
			done = true
			break
		}
	}
	if streamErr == nil && !done {
		streamErr = genCtx.Err()
		if streamErr == nil {
			streamErr = fmt.Errorf("stream closed before completion")
		}
	}
	// Releases the provider goroutine when we stopped reading early.
	cancel()

	reply := text.String()
	elapsed := time.Since(start).Seconds()
	if streamErr != nil && strings.TrimSpace(reply) == "" {
		o.metrics.ObserveLLM("generate_stream", "error", elapsed)
		span.RecordError(streamErr)
		o.logger.Error("response stream produced no text", "error", streamErr, "conversation_id", req.ConversationID)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, streamErr)
	}

	resp := &Response{
		Response:     reply,
		ResearchUsed: paperTitles(papers),
		Incomplete:   streamErr != nil,
	}
	if resp.Incomplete {
		o.metrics.ObserveLLM("generate_stream", "partial", elapsed)
		span.RecordError(streamErr)
		o.logger.Warn("response stream interrupted; returning partial reply",
			"error", streamErr,
			"conversation_id", req.ConversationID,
			"partial_length", len(reply),
		)
	} else {
		o.metrics.ObserveLLM("generate_stream", "ok", elapsed)
		o.metrics.ObserveTokens("generate_stream", usage.InputTokens, usage.OutputTokens)
	}
	o.finish(ctx, req, resp, crisis.RiskNone)
	return resp, nil
}

// gate runs crisis detection and, when risk or an open screening is found,
// returns the response that replaces generation.
func (o *Orchestrator) gate(ctx context.Context, req Request) (*Response, bool) {
	assessment := o.detector.Detect(ctx, req.UserMessage)
	if !assessment.RiskLevel.Valid() {
		o.logger.Error("crisis detector returned an invalid level; assuming screening is required",
			"risk_level", assessment.RiskLevel,
			"conversation_id", req.ConversationID,
		)
		assessment = crisis.SafeDefault()
	}
	if assessment.RequiresScreening || crisis.RequiresScreening(assessment.RiskLevel) {
		return o.crisisResponse(ctx, req, assessment), true
	}

	if o.screener == nil {
		return nil, false
	}
	session, err := o.screener.Active(ctx, req.ConversationID)
	if err != nil {
		o.logger.Warn("failed to check screening state", "error", err, "conversation_id", req.ConversationID)
		return nil, false
	}
	if session == nil {
		return nil, false
	}
	next, err := cssrs.NextQuestion(session.Responses)
	if err != nil || next == nil {
		o.logger.Warn("open screening has no next question", "error", err, "conversation_id", req.ConversationID)
		return nil, false
	}
	resp := &Response{
		Response:     "Before we go on, I'd like to finish the short check-in we started, so I can make sure you have the right support.\n\n" + next.Text,
		ResearchUsed: []string{},
		CrisisData: &CrisisData{
			RiskLevel:          session.TriggerRisk,
			RequiresScreening:  true,
			NextQuestion:       next,
			DetectedIndicators: assessment.DetectedIndicators,
		},
	}
	o.persist(ctx, req, resp, assessment.RiskLevel)
	return resp, true
}

func (o *Orchestrator) crisisResponse(ctx context.Context, req Request, assessment crisis.Assessment) *Response {
	var next *cssrs.Question
	if o.screener != nil {
		q, err := o.screener.Start(ctx, req.ConversationID, req.UserID, assessment.RiskLevel)
		if err != nil {
			o.logger.Error("failed to start screening", "error", err, "conversation_id", req.ConversationID)
		}
		next = q
	}
	if next == nil {
		next, _ = cssrs.NextQuestion(nil)
	}

	text := crisis.BuildResponse(assessment)
	if next != nil {
		text += "\n\n" + next.Text
	}
	resp := &Response{
		Response:     text,
		ResearchUsed: []string{},
		ShouldAlert:  true,
		CrisisData: &CrisisData{
			RiskLevel:          assessment.RiskLevel,
			RequiresScreening:  true,
			NextQuestion:       next,
			DetectedIndicators: assessment.DetectedIndicators,
		},
	}
	o.alert(ctx, notify.CrisisAlert{
		Kind:           notify.AlertDetection,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		RiskLevel:      assessment.RiskLevel,
		Indicators:     assessment.DetectedIndicators,
		OccurredAt:     o.now().UTC(),
	})
	o.audit(ctx, req.ConversationID, func(bg context.Context) error {
		return o.auditor.LogCrisisDetected(bg, req.ConversationID, req.UserID, assessment)
	})
	o.persist(ctx, req, resp, assessment.RiskLevel)
	return resp
}

// prepare fetches research and the conversation summary concurrently and
// assembles the bounded prompt.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (llm.Request, []research.ScoredPaper) {
	var (
		papers  []research.ScoredPaper
		summary string
	)
	g, gctx := errgroup.WithContext(ctx)
	if o.research != nil {
		g.Go(func() error {
			var opts []research.RetrieveOption
			if req.Topic != "" {
				opts = append(opts, research.WithTopic(req.Topic))
			}
			found, err := o.research.Retrieve(gctx, req.UserMessage, o.maxPapers, opts...)
			if err != nil {
				o.logger.Warn("research unavailable for reply", "error", err, "conversation_id", req.ConversationID)
				return nil
			}
			papers = found
			return nil
		})
	}
	if o.summaries != nil && req.ConversationID != "" {
		g.Go(func() error {
			text, ok, err := o.summaries.GetSummary(gctx, req.ConversationID)
			if err != nil {
				o.logger.Warn("conversation summary unavailable", "error", err, "conversation_id", req.ConversationID)
				return nil
			}
			if ok {
				summary = text
			}
			return nil
		})
	}
	_ = g.Wait()

	return buildPrompt(o.model, o.maxTokens, o.temperature, summary, req.History, research.FormatContext(papers), req.UserMessage), papers
}

func buildPrompt(model string, maxTokens int32, temperature float32, summary string, history []memory.Message, researchBlock, userMessage string) llm.Request {
	var messages []llm.Message
	if summary = strings.TrimSpace(summary); summary != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: "Summary of the earlier conversation:\n" + summary})
	}

	window := boundedWindow(history, historyWindow)
	current := strings.TrimSpace(userMessage)
	if n := len(window); n > 0 && window[n-1].Role == llm.RoleUser {
		// An unanswered user turn is folded into the current message so roles alternate.
		current = window[n-1].Content + "\n\n" + current
		window = window[:n-1]
	}
	messages = append(messages, window...)

	if researchBlock != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: researchBlock})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: current})

	return llm.Request{
		Model:       model,
		System:      []string{systemPrompt},
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// boundedWindow keeps the last n user/assistant turns, starting on a user turn
// and merging consecutive turns from the same role.
func boundedWindow(history []memory.Message, n int) []llm.Message {
	var turns []llm.Message
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" || (m.Role != llm.RoleUser && m.Role != llm.RoleAssistant) {
			continue
		}
		turns = append(turns, llm.Message{Role: m.Role, Content: content})
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	for len(turns) > 0 && turns[0].Role != llm.RoleUser {
		turns = turns[1:]
	}

	merged := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		if last := len(merged) - 1; last >= 0 && merged[last].Role == t.Role {
			merged[last].Content += "\n\n" + t.Content
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

func paperTitles(papers []research.ScoredPaper) []string {
	titles := make([]string, 0, len(papers))
	for _, p := range papers {
		if title := strings.TrimSpace(p.Title); title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}

// ShouldSummarize reports whether the turn completing this exchange lands on a
// summary boundary. history excludes the current user message and reply.
func ShouldSummarize(historyLen int) bool {
	return (historyLen+2)%memory.SummaryWindow == 0
}

// finish persists the exchange and, on a summary boundary, dispatches
// summarization over the history plus this exchange.
func (o *Orchestrator) finish(ctx context.Context, req Request, resp *Response, risk crisis.RiskLevel) {
	o.persist(ctx, req, resp, risk)
	if o.scheduler == nil || resp.Incomplete || !ShouldSummarize(len(req.History)) {
		return
	}

	now := o.now().UTC()
	messages := make([]memory.Message, 0, len(req.History)+2)
	messages = append(messages, req.History...)
	messages = append(messages,
		memory.Message{Role: llm.RoleUser, Content: req.UserMessage, Timestamp: now},
		memory.Message{Role: llm.RoleAssistant, Content: resp.Response, Timestamp: now},
	)
	job := memory.SummaryJob{ConversationID: req.ConversationID, UserID: req.UserID, Messages: messages}
	o.inBackground(ctx, func(bg context.Context) {
		if err := o.scheduler.Schedule(bg, job); err != nil {
			o.metrics.ObserveSummary("dispatch_failed")
			o.logger.Error("failed to dispatch summary job", "error", err, "conversation_id", req.ConversationID)
		}
	})
}

func (o *Orchestrator) persist(ctx context.Context, req Request, resp *Response, risk crisis.RiskLevel) {
	if o.turns == nil {
		return
	}
	now := o.now().UTC()
	turns := []ChatTurn{
		{
			ID:             uuid.NewString(),
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Role:           llm.RoleUser,
			Content:        req.UserMessage,
			RiskLevel:      string(risk),
			CreatedAt:      now,
		},
		{
			ID:             uuid.NewString(),
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Role:           llm.RoleAssistant,
			Content:        resp.Response,
			Incomplete:     resp.Incomplete,
			ResearchUsed:   resp.ResearchUsed,
			CreatedAt:      now.Add(time.Millisecond),
		},
	}
	o.appendTurns(ctx, turns...)
}

func (o *Orchestrator) appendTurns(ctx context.Context, turns ...ChatTurn) {
	if o.turns == nil || len(turns) == 0 {
		return
	}
	conversationID := turns[0].ConversationID
	o.inBackground(ctx, func(bg context.Context) {
		if err := o.turns.AppendTurns(bg, turns...); err != nil {
			o.metrics.ObservePersistenceFailure("chat_turns")
			o.logger.Error("failed to persist chat turns", "error", err, "conversation_id", conversationID)
		}
	})
}

func (o *Orchestrator) alert(ctx context.Context, alert notify.CrisisAlert) {
	if o.alerter == nil {
		return
	}
	o.inBackground(ctx, func(bg context.Context) {
		if err := o.alerter.NotifyCrisis(bg, alert); err != nil {
			o.logger.Error("failed to deliver crisis alert",
				"error", err,
				"conversation_id", alert.ConversationID,
				"risk_level", alert.RiskLevel,
			)
		}
	})
}

func (o *Orchestrator) audit(ctx context.Context, conversationID string, fn func(context.Context) error) {
	if o.auditor == nil {
		return
	}
	o.inBackground(ctx, func(bg context.Context) {
		if err := fn(bg); err != nil {
			o.metrics.ObservePersistenceFailure("safety_audit")
			o.logger.Error("failed to record safety audit event", "error", err, "conversation_id", conversationID)
		}
	})
}

// inBackground runs fn detached from the request's cancellation but bounded by
// the background timeout.
func (o *Orchestrator) inBackground(ctx context.Context, fn func(context.Context)) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.backgroundTimeout)
		defer cancel()
		fn(bg)
	}()
}
