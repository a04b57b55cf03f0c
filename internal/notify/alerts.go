// Package notify delivers crisis alerts to the care team by email.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// AlertKind says which stage raised the alert.
type AlertKind string

const (
	AlertDetection AlertKind = "detection"
	AlertScreening AlertKind = "screening"
)

// CrisisAlert is what the care team is told. It deliberately carries the matched
// indicator phrases but not the user's full message.
type CrisisAlert struct {
	Kind           AlertKind
	ConversationID string
	UserID         string
	RiskLevel      crisis.RiskLevel
	Indicators     []string
	Recommendation string
	OccurredAt     time.Time
}

// AlertService emails crisis alerts to a fixed care-team inbox.
type AlertService struct {
	email  EmailSender
	to     string
	logger *logging.Logger
}

func NewAlertService(email EmailSender, to string, logger *logging.Logger) *AlertService {
	if logger == nil {
		logger = logging.Default()
	}
	return &AlertService{email: email, to: strings.TrimSpace(to), logger: logger}
}

// NotifyCrisis sends one alert. A service without a sender or recipient only logs.
func (s *AlertService) NotifyCrisis(ctx context.Context, alert CrisisAlert) error {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}
	s.logger.Warn("crisis alert raised",
		"kind", alert.Kind,
		"conversation_id", alert.ConversationID,
		"risk_level", alert.RiskLevel,
	)
	if s.email == nil || s.to == "" {
		s.logger.Debug("notify: alert email not configured, skipping delivery")
		return nil
	}

	msg := EmailMessage{
		To:      s.to,
		ToName:  "Care Team",
		Subject: alertSubject(alert),
		Body:    alertText(alert),
		HTML:    alertHTML(alert),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send crisis alert: %w", err)
	}
	return nil
}

func alertSubject(a CrisisAlert) string {
	level := strings.ToUpper(string(a.RiskLevel))
	if a.Kind == AlertScreening {
		return fmt.Sprintf("[%s] Screening result for conversation %s", level, a.ConversationID)
	}
	return fmt.Sprintf("[%s] Crisis risk detected in conversation %s", level, a.ConversationID)
}

func alertText(a CrisisAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk level: %s\n", a.RiskLevel)
	fmt.Fprintf(&b, "Stage: %s\n", a.Kind)
	fmt.Fprintf(&b, "Conversation: %s\n", a.ConversationID)
	fmt.Fprintf(&b, "User: %s\n", a.UserID)
	fmt.Fprintf(&b, "Time: %s\n", a.OccurredAt.Format(time.RFC3339))
	if len(a.Indicators) > 0 {
		fmt.Fprintf(&b, "Indicators: %s\n", strings.Join(a.Indicators, "; "))
	}
	if a.Recommendation != "" {
		fmt.Fprintf(&b, "Recommendation given: %s\n", a.Recommendation)
	}
	b.WriteString("\nPlease review this conversation and follow the crisis escalation protocol.")
	return b.String()
}

func alertHTML(a CrisisAlert) string {
	var b strings.Builder
	b.WriteString("<h2>Crisis alert</h2><ul>")
	fmt.Fprintf(&b, "<li><strong>Risk level:</strong> %s</li>", html.EscapeString(string(a.RiskLevel)))
	fmt.Fprintf(&b, "<li><strong>Stage:</strong> %s</li>", html.EscapeString(string(a.Kind)))
	fmt.Fprintf(&b, "<li><strong>Conversation:</strong> %s</li>", html.EscapeString(a.ConversationID))
	fmt.Fprintf(&b, "<li><strong>User:</strong> %s</li>", html.EscapeString(a.UserID))
	fmt.Fprintf(&b, "<li><strong>Time:</strong> %s</li>", a.OccurredAt.Format(time.RFC3339))
	if len(a.Indicators) > 0 {
		fmt.Fprintf(&b, "<li><strong>Indicators:</strong> %s</li>", html.EscapeString(strings.Join(a.Indicators, "; ")))
	}
	if a.Recommendation != "" {
		fmt.Fprintf(&b, "<li><strong>Recommendation given:</strong> %s</li>", html.EscapeString(a.Recommendation))
	}
	b.WriteString("</ul><p>Please review this conversation and follow the crisis escalation protocol.</p>")
	return b.String()
}
