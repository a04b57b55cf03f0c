package crisis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/internal/observability/metrics"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

var detectorTracer = otel.Tracer("wellness.internal.crisis")

const rubricPrompt = `You are a clinical safety classifier for a mental-wellness chat companion. Assess ONLY the user's latest message for suicide and self-harm risk.

RUBRIC:
- Distinguish casual idiom from genuine ideation. "This headache is killing me", "I'd die for some pizza", "that exam murdered me" are idioms: riskLevel "none".
- Passive ideation (wishing to be dead, not wanting to wake up, feeling others are better off without them) without method or intent: "moderate".
- Active ideation: explicit thoughts of killing oneself, naming a method, or describing a plan: "high".
- Imminent: stated intent to act with a timeframe (tonight, today, right now), means already at hand (pills ready, gun loaded), goodbye or finality language, a written note: "imminent".
- Recognise euphemism and indirect language ("end it all", "go to sleep and not wake up", "not be a problem much longer", "make it stop for good").
- General sadness, stress or loneliness with no reference to death or self-harm: "low".
- Ordinary conversation: "none".

Risk ladder: none < low < moderate < high < imminent. When uncertain between two levels choose the higher.
Set requiresScreening to true for moderate, high and imminent.
Put a one or two sentence clinical justification in reasoning, and copy the exact phrases that drove the decision into detectedIndicators (empty list when none).`

// Classifier is the contract the orchestrator depends on.
type Classifier interface {
	Detect(ctx context.Context, message string) Assessment
}

// Detector classifies messages with a language model and falls back to the
// deterministic keyword detector on any failure.
type Detector struct {
	client  llm.Client
	model   string
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.CompanionMetrics
}

var _ Classifier = (*Detector)(nil)

type DetectorOption func(*Detector)

// WithTimeout bounds the model call; on expiry the keyword detector answers.
func WithTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithMetrics(m *metrics.CompanionMetrics) DetectorOption {
	return func(d *Detector) {
		d.metrics = m
	}
}

// NewDetector builds a detector. A nil client yields a keyword-only detector.
func NewDetector(client llm.Client, model string, logger *logging.Logger, opts ...DetectorOption) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Detector{
		client:  client,
		model:   model,
		timeout: 8 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var assessmentSchema = llm.SchemaFor[modelAssessment]()

// modelAssessment is the wire shape requested from the model.
type modelAssessment struct {
	RiskLevel          string   `json:"riskLevel" jsonschema:"enum=none,enum=low,enum=moderate,enum=high,enum=imminent"`
	RequiresScreening  bool     `json:"requiresScreening"`
	Reasoning          string   `json:"reasoning"`
	DetectedIndicators []string `json:"detectedIndicators"`
}

// Detect never returns an error: model failures degrade to keyword matching.
func (d *Detector) Detect(ctx context.Context, message string) Assessment {
	ctx, span := detectorTracer.Start(ctx, "crisis.detect")
	defer span.End()

	var assessment Assessment
	if strings.TrimSpace(message) == "" {
		assessment = DetectKeywords(message)
	} else if d.client == nil {
		assessment = DetectKeywords(message)
		d.metrics.ObserveDetectorFallback("unconfigured")
	} else {
		modelAssessment, err := d.detectWithModel(ctx, message)
		if err != nil {
			reason := "error"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			span.RecordError(err)
			d.logger.Warn("crisis detector model failed; using keyword fallback",
				"error", err,
				"reason", reason,
			)
			d.metrics.ObserveDetectorFallback(reason)
			assessment = DetectKeywords(message)
		} else {
			assessment = modelAssessment
		}
	}

	span.SetAttributes(
		attribute.String("wellness.crisis.risk_level", string(assessment.RiskLevel)),
		attribute.String("wellness.crisis.source", string(assessment.Source)),
		attribute.Bool("wellness.crisis.requires_screening", assessment.RequiresScreening),
	)
	d.metrics.ObserveAssessment(string(assessment.RiskLevel), string(assessment.Source))
	if assessment.RequiresScreening {
		d.logger.Warn("crisis risk detected",
			"risk_level", assessment.RiskLevel,
			"source", assessment.Source,
			"indicators", len(assessment.DetectedIndicators),
		)
	}
	return assessment
}

func (d *Detector) detectWithModel(ctx context.Context, message string) (Assessment, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.Complete(callCtx, llm.Request{
		Model:       d.model,
		System:      []string{rubricPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: message}},
		MaxTokens:   300,
		Temperature: 0,
		JSONSchema:  assessmentSchema,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("crisis: model call: %w", err)
	}
	return ParseModelAssessment(resp.Text)
}

// ParseModelAssessment validates a structured model reply. Unknown risk levels
// are rejected so a malformed answer can never be read as "no risk".
func ParseModelAssessment(text string) (Assessment, error) {
	var raw modelAssessment
	if err := llm.DecodeJSON(text, &raw); err != nil {
		return Assessment{}, fmt.Errorf("crisis: decode assessment: %w", err)
	}
	level, err := ParseRiskLevel(raw.RiskLevel)
	if err != nil {
		return Assessment{}, err
	}
	indicators := make([]string, 0, len(raw.DetectedIndicators))
	for _, indicator := range raw.DetectedIndicators {
		if indicator = strings.TrimSpace(indicator); indicator != "" {
			indicators = append(indicators, indicator)
		}
	}
	return Assessment{
		RiskLevel:          level,
		Reasoning:          strings.TrimSpace(raw.Reasoning),
		DetectedIndicators: indicators,
		Source:             SourceModel,
	}.normalized(), nil
}
