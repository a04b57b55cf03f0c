// Package audit keeps an append-only record of safety events. Message text is
// never stored; events carry the risk level and detector output only.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
)

// EventType names a kind of safety event.
type EventType string

const (
	// EventCrisisDetected is logged when a message is routed into screening.
	EventCrisisDetected EventType = "safety.crisis_detected"
	// EventScreeningVerdict is logged when a C-SSRS screening produces a verdict.
	EventScreeningVerdict EventType = "safety.screening_verdict"
)

// Event is one immutable audit record.
type Event struct {
	ID             string           `json:"id"`
	EventType      EventType        `json:"eventType"`
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId,omitempty"`
	RiskLevel      crisis.RiskLevel `json:"riskLevel"`
	Details        json.RawMessage  `json:"details,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Details holds event-specific fields.
type Details struct {
	// Crisis detection
	Indicators []string      `json:"indicators,omitempty"`
	Source     crisis.Source `json:"source,omitempty"`

	// Screening verdict
	Recommendation string `json:"recommendation,omitempty"`
	Alerted        bool   `json:"alerted,omitempty"`
}

// Service writes and queries safety_audit_events.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	if db == nil {
		panic("audit: db cannot be nil")
	}
	return &Service{db: db, now: time.Now}
}

// LogEvent records an event, assigning an ID and timestamp when missing.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO safety_audit_events (
			id, event_type, conversation_id, user_id, risk_level, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.EventType,
		event.ConversationID,
		nullString(event.UserID),
		event.RiskLevel,
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: log event: %w", err)
	}
	return nil
}

// LogCrisisDetected records a detection that triggered screening.
func (s *Service) LogCrisisDetected(ctx context.Context, conversationID, userID string, assessment crisis.Assessment) error {
	details, _ := json.Marshal(Details{
		Indicators: assessment.DetectedIndicators,
		Source:     assessment.Source,
	})
	return s.LogEvent(ctx, Event{
		EventType:      EventCrisisDetected,
		ConversationID: conversationID,
		UserID:         userID,
		RiskLevel:      assessment.RiskLevel,
		Details:        details,
	})
}

// LogScreeningVerdict records a completed or concluded screening.
func (s *Service) LogScreeningVerdict(ctx context.Context, conversationID, userID string, verdict cssrs.Verdict) error {
	details, _ := json.Marshal(Details{
		Recommendation: verdict.Recommendation,
		Alerted:        verdict.ShouldAlert,
	})
	return s.LogEvent(ctx, Event{
		EventType:      EventScreeningVerdict,
		ConversationID: conversationID,
		UserID:         userID,
		RiskLevel:      verdict.FinalRiskLevel,
		Details:        details,
	})
}

// Filter narrows QueryEvents. Zero values are ignored.
type Filter struct {
	ConversationID string
	UserID         string
	EventType      EventType
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
	Offset         int
}

// QueryEvents returns matching events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, conversation_id, user_id, risk_level, details, created_at
		FROM safety_audit_events
		WHERE 1 = 1`
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.ConversationID != "" {
		add("conversation_id =", filter.ConversationID)
	}
	if filter.UserID != "" {
		add("user_id =", filter.UserID)
	}
	if filter.EventType != "" {
		add("event_type =", filter.EventType)
	}
	if !filter.StartTime.IsZero() {
		add("created_at >=", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("created_at <=", filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e       Event
			userID  sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.ConversationID, &userID, &e.RiskLevel, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.UserID = userID.String
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
