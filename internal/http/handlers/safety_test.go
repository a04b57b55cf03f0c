package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-companion/internal/audit"
	"github.com/wolfman30/wellness-companion/internal/crisis"
)

type stubQuerier struct {
	filter audit.Filter
	events []audit.Event
	err    error
}

func (s *stubQuerier) QueryEvents(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	s.filter = filter
	return s.events, s.err
}

func TestSafetyEventsListParsesFilter(t *testing.T) {
	q := &stubQuerier{events: []audit.Event{{ID: "evt-1", EventType: audit.EventCrisisDetected, ConversationID: "conv-1", RiskLevel: crisis.RiskHigh}}}
	h := NewSafetyEventsHandler(q, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/safety-events?conversationId=conv-1&type=safety.crisis_detected&since=2026-03-01T00:00:00Z&limit=9999&offset=5", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv-1", q.filter.ConversationID)
	assert.Equal(t, audit.EventCrisisDetected, q.filter.EventType)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), q.filter.StartTime)
	assert.True(t, q.filter.EndTime.IsZero())
	assert.Equal(t, maxSafetyEventLimit, q.filter.Limit)
	assert.Equal(t, 5, q.filter.Offset)

	var body struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "evt-1", body.Events[0].ID)
}

func TestSafetyEventsListDefaults(t *testing.T) {
	q := &stubQuerier{events: []audit.Event{}}
	h := NewSafetyEventsHandler(q, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/safety-events", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultSafetyEventLimit, q.filter.Limit)
}

func TestSafetyEventsListRejectsBadParams(t *testing.T) {
	for _, query := range []string{"since=yesterday", "until=2026-13-01", "limit=0", "limit=x", "offset=-1"} {
		t.Run(query, func(t *testing.T) {
			h := NewSafetyEventsHandler(&stubQuerier{}, nil)
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/safety-events?"+query, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSafetyEventsListStoreFailure(t *testing.T) {
	h := NewSafetyEventsHandler(&stubQuerier{err: errors.New("db down")}, nil)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/safety-events", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
