package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/wellness-companion/internal/audit"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

const (
	defaultSafetyEventLimit = 100
	maxSafetyEventLimit     = 500
)

// SafetyEventQuerier reads the safety audit trail.
type SafetyEventQuerier interface {
	QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// SafetyEventsHandler serves the care-team audit endpoint.
type SafetyEventsHandler struct {
	events SafetyEventQuerier
	logger *logging.Logger
}

func NewSafetyEventsHandler(events SafetyEventQuerier, logger *logging.Logger) *SafetyEventsHandler {
	if events == nil {
		panic("handlers: safety event querier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SafetyEventsHandler{events: events, logger: logger}
}

// List handles GET /admin/safety-events.
// Query params: conversationId, userId, type, since (RFC3339), until (RFC3339), limit, offset.
func (h *SafetyEventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		ConversationID: q.Get("conversationId"),
		UserID:         q.Get("userId"),
		EventType:      audit.EventType(q.Get("type")),
		Limit:          defaultSafetyEventLimit,
	}

	var err error
	if filter.StartTime, err = parseTimeParam(q.Get("since")); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "since must be RFC3339"})
		return
	}
	if filter.EndTime, err = parseTimeParam(q.Get("until")); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "until must be RFC3339"})
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = min(n, maxSafetyEventLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "offset must be a non-negative integer"})
			return
		}
		filter.Offset = n
	}

	events, err := h.events.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query safety events", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, errorResponse{Error: "failed to load safety events"})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{"events": events})
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
