// Package companion is the response orchestrator: it gates every message through
// crisis detection, routes risk into C-SSRS screening, and otherwise grounds a
// generated reply in research and conversation memory.
package companion

import (
	"errors"
	"time"

	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
	"github.com/wolfman30/wellness-companion/internal/memory"
)

var (
	// ErrGenerationFailed is returned when no reply could be generated. The
	// orchestrator never substitutes a canned therapeutic reply.
	ErrGenerationFailed = errors.New("companion: response generation failed")
	// ErrEmptyMessage is returned for blank user messages.
	ErrEmptyMessage = errors.New("companion: message is empty")
	// ErrScreeningUnavailable is returned when screening answers arrive but no screener is wired.
	ErrScreeningUnavailable = errors.New("companion: screening is not configured")
)

// Request is one inbound user message with its bounded history window.
type Request struct {
	UserMessage    string           `json:"message"`
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	History        []memory.Message `json:"history,omitempty"`
	Topic          string           `json:"topic,omitempty"`
}

// CrisisData is returned when risk was detected or a screening is in progress.
type CrisisData struct {
	RiskLevel          crisis.RiskLevel `json:"riskLevel"`
	RequiresScreening  bool             `json:"requiresScreening"`
	NextQuestion       *cssrs.Question  `json:"nextQuestion,omitempty"`
	DetectedIndicators []string         `json:"detectedIndicators"`
}

// Response is the orchestrator's reply. Incomplete marks a streamed reply that
// was cut short.
type Response struct {
	Response     string      `json:"response"`
	ResearchUsed []string    `json:"researchUsed"`
	ShouldAlert  bool        `json:"shouldAlert"`
	CrisisData   *CrisisData `json:"crisisData,omitempty"`
	Incomplete   bool        `json:"incomplete,omitempty"`
}

// ScreeningAnswer routes one C-SSRS answer back into the state machine.
type ScreeningAnswer struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	QuestionNumber int    `json:"questionNumber"`
	Answer         string `json:"answer"`
}

// ScreeningReply is either the next question or, once complete, the verdict and
// the reply that replaces a generated one.
type ScreeningReply struct {
	Response     string          `json:"response"`
	Complete     bool            `json:"complete"`
	NextQuestion *cssrs.Question `json:"nextQuestion,omitempty"`
	Verdict      *cssrs.Verdict  `json:"verdict,omitempty"`
	ShouldAlert  bool            `json:"shouldAlert"`
}

// ChatTurn is one persisted chat message.
type ChatTurn struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string
	Content        string
	Incomplete     bool
	RiskLevel      string
	ResearchUsed   []string
	CreatedAt      time.Time
}
