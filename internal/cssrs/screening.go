// Package cssrs implements the Columbia Suicide Severity Rating Scale screener:
// a fixed six-question bank walked strictly in order, and the categorical
// triage that turns the answers into a verdict.
package cssrs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/wellness-companion/internal/crisis"
)

type Category string

const (
	CategoryIdeation Category = "ideation"
	CategoryMethod   Category = "method"
	CategoryPlan     Category = "plan"
	CategoryMeans    Category = "means"
	CategoryIntent   Category = "intent"
)

// Question is one entry of the fixed bank.
type Question struct {
	Number   int      `json:"number"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
}

var questionBank = [...]Question{
	{Number: 1, Category: CategoryIdeation, Text: "In the past month, have you had any actual thoughts of killing yourself?"},
	{Number: 2, Category: CategoryIdeation, Text: "In the past month, have you wished you were dead or felt the world would be better off without you?"},
	{Number: 3, Category: CategoryMethod, Text: "Have you been thinking about how you might do this?"},
	{Number: 4, Category: CategoryPlan, Text: "Have you started to work out, or worked out, the details of how to kill yourself?"},
	{Number: 5, Category: CategoryMeans, Text: "Do you have access to the means you have thought about using, such as pills, a firearm or something else?"},
	{Number: 6, Category: CategoryIntent, Text: "Do you intend to act on these thoughts of killing yourself?"},
}

// QuestionCount is the number of questions in a complete screening.
const QuestionCount = len(questionBank)

// Questions returns a copy of the bank in asking order.
func Questions() []Question {
	out := make([]Question, QuestionCount)
	copy(out, questionBank[:])
	return out
}

// QuestionByNumber returns the question with the given 1-based number.
func QuestionByNumber(n int) (Question, bool) {
	if n < 1 || n > QuestionCount {
		return Question{}, false
	}
	return questionBank[n-1], true
}

type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

// ParseAnswer accepts yes/no plus the common short forms y/n and true/false.
func ParseAnswer(raw string) (Answer, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true":
		return AnswerYes, nil
	case "no", "n", "false":
		return AnswerNo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAnswer, raw)
	}
}

// Response is the answer to one screening question.
type Response struct {
	QuestionNumber int    `json:"questionNumber"`
	Answer         Answer `json:"answer"`
}

var (
	// ErrOutOfOrder is returned when an answer does not target the next unanswered question.
	ErrOutOfOrder = errors.New("cssrs: response out of order")
	// ErrInvalidAnswer is returned for answers other than yes or no.
	ErrInvalidAnswer = errors.New("cssrs: invalid answer")
	// ErrComplete is returned when answering a screening that already has every answer.
	ErrComplete = errors.New("cssrs: screening already complete")
)

// Validate checks that responses are numbered 1..n with no gaps and carry yes/no answers.
func Validate(responses []Response) error {
	if len(responses) > QuestionCount {
		return fmt.Errorf("%w: %d responses for %d questions", ErrOutOfOrder, len(responses), QuestionCount)
	}
	for i, r := range responses {
		if r.QuestionNumber != i+1 {
			return fmt.Errorf("%w: position %d holds question %d", ErrOutOfOrder, i+1, r.QuestionNumber)
		}
		if r.Answer != AnswerYes && r.Answer != AnswerNo {
			return fmt.Errorf("%w: question %d answered %q", ErrInvalidAnswer, r.QuestionNumber, r.Answer)
		}
	}
	return nil
}

// Append adds next to responses after checking it answers question len(responses)+1.
// The input slice is never modified.
func Append(responses []Response, next Response) ([]Response, error) {
	if err := Validate(responses); err != nil {
		return nil, err
	}
	if len(responses) == QuestionCount {
		return nil, ErrComplete
	}
	if want := len(responses) + 1; next.QuestionNumber != want {
		return nil, fmt.Errorf("%w: expected question %d, got %d", ErrOutOfOrder, want, next.QuestionNumber)
	}
	if next.Answer != AnswerYes && next.Answer != AnswerNo {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAnswer, next.Answer)
	}
	out := make([]Response, len(responses), len(responses)+1)
	copy(out, responses)
	return append(out, next), nil
}

// NextQuestion returns question len(responses)+1, or nil once all six are answered.
func NextQuestion(responses []Response) (*Question, error) {
	if err := Validate(responses); err != nil {
		return nil, err
	}
	if len(responses) == QuestionCount {
		return nil, nil
	}
	q := questionBank[len(responses)]
	return &q, nil
}

// State is the position of a screening in its lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateAwaitingQ1 State = "awaiting_q1"
	StateAwaitingQ2 State = "awaiting_q2"
	StateAwaitingQ3 State = "awaiting_q3"
	StateAwaitingQ4 State = "awaiting_q4"
	StateAwaitingQ5 State = "awaiting_q5"
	StateAwaitingQ6 State = "awaiting_q6"
	StateComplete   State = "complete"
)

var awaiting = [...]State{StateAwaitingQ1, StateAwaitingQ2, StateAwaitingQ3, StateAwaitingQ4, StateAwaitingQ5, StateAwaitingQ6}

// StateOf maps responses to a state. started distinguishes a screening that has
// been opened but not yet answered from one that was never opened.
func StateOf(started bool, responses []Response) State {
	switch {
	case !started && len(responses) == 0:
		return StateNotStarted
	case len(responses) >= QuestionCount:
		return StateComplete
	default:
		return awaiting[len(responses)]
	}
}

// Verdict is the outcome of a screening. FinalRiskLevel is never none.
type Verdict struct {
	FinalRiskLevel crisis.RiskLevel `json:"finalRiskLevel"`
	Recommendation string           `json:"recommendation"`
	ShouldAlert    bool             `json:"shouldAlert"`
}

const (
	recommendImminent = "Please call 911 or go to your nearest emergency room right now. If you can, stay with someone you trust and keep away from anything you could use to hurt yourself."
	recommendHigh     = "Please call or text 988 to reach the Suicide & Crisis Lifeline now. Do not wait; a counselor is available any time, day or night."
	recommendModerate = "Please reach out to the 988 Suicide & Crisis Lifeline by call or text, or text HOME to 741741 to talk with the Crisis Text Line."
	recommendLow      = "Keep checking in with yourself and with people you trust. If these feelings return or get stronger, reach out to 988 or your care team."
)

// Assess computes the verdict with categorical precedence: means or intent,
// then method or plan, then ideation. It is not a score sum. A partial screening
// is assessed over the answers given so far.
func Assess(responses []Response) (Verdict, error) {
	if err := Validate(responses); err != nil {
		return Verdict{}, err
	}
	yes := make(map[int]bool, len(responses))
	for _, r := range responses {
		yes[r.QuestionNumber] = r.Answer == AnswerYes
	}

	switch {
	case yes[5] || yes[6]:
		return Verdict{FinalRiskLevel: crisis.RiskImminent, Recommendation: recommendImminent, ShouldAlert: true}, nil
	case yes[3] || yes[4]:
		return Verdict{FinalRiskLevel: crisis.RiskHigh, Recommendation: recommendHigh, ShouldAlert: true}, nil
	case yes[1] || yes[2]:
		return Verdict{FinalRiskLevel: crisis.RiskModerate, Recommendation: recommendModerate, ShouldAlert: true}, nil
	default:
		return Verdict{FinalRiskLevel: crisis.RiskLow, Recommendation: recommendLow, ShouldAlert: false}, nil
	}
}
