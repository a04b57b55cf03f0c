package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/wellness-companion/internal/companion"
	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
	"github.com/wolfman30/wellness-companion/internal/http/middleware"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

type stubChat struct {
	mu        sync.Mutex
	lastReq   companion.Request
	lastAns   companion.ScreeningAnswer
	resp      *companion.Response
	err       error
	chunks    []string
	reply     *companion.ScreeningReply
	answerErr error
}

func (s *stubChat) Respond(_ context.Context, req companion.Request) (*companion.Response, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubChat) RespondStream(_ context.Context, req companion.Request, onChunk func(string) error) (*companion.Response, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, companion.ErrEmptyMessage
	}
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}
	return s.resp, nil
}

func (s *stubChat) AnswerScreening(_ context.Context, ans companion.ScreeningAnswer) (*companion.ScreeningReply, error) {
	s.mu.Lock()
	s.lastAns = ans
	s.mu.Unlock()
	if s.answerErr != nil {
		return nil, s.answerErr
	}
	return s.reply, nil
}

func (s *stubChat) ConcludeScreening(_ context.Context, conversationID, userID string) (*companion.ScreeningReply, error) {
	if s.answerErr != nil {
		return nil, s.answerErr
	}
	return s.reply, nil
}

func (s *stubChat) request() companion.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func newCompanionRouter(chat ChatService, turns TurnReader) http.Handler {
	h := NewCompanionHandler(chat, turns, middleware.NewOriginPolicy([]string{"*"}), logging.New("error"))
	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)
	r.Post("/v1/chat", h.Chat)
	r.Get("/v1/chat/stream", h.Stream)
	r.Post("/v1/screening/answers", h.AnswerScreening)
	r.Post("/v1/screening/{conversationID}/conclude", h.ConcludeScreening)
	r.Get("/v1/conversations/{conversationID}/turns", h.History)
	return r
}

func TestChatReturnsResponse(t *testing.T) {
	chat := &stubChat{resp: &companion.Response{Response: "I'm here with you.", ResearchUsed: []string{}}}
	router := newCompanionRouter(chat, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"I feel low","conversationId":"conv-1","userId":"u1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var body companion.Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Response != "I'm here with you." {
		t.Fatalf("unexpected response %q", body.Response)
	}
	if got := chat.request(); got.UserMessage != "I feel low" || got.ConversationID != "conv-1" {
		t.Fatalf("unexpected forwarded request %+v", got)
	}
}

func TestChatCrisisPayloadShape(t *testing.T) {
	q := cssrs.Questions()[0]
	chat := &stubChat{resp: &companion.Response{
		Response:     "Please call 911",
		ResearchUsed: []string{},
		ShouldAlert:  true,
		CrisisData: &companion.CrisisData{
			RiskLevel:          crisis.RiskImminent,
			RequiresScreening:  true,
			NextQuestion:       &q,
			DetectedIndicators: []string{"ending it all tonight"},
		},
	}}
	router := newCompanionRouter(chat, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"ending it all tonight","conversationId":"c"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["shouldAlert"] != true {
		t.Fatalf("expected shouldAlert true, got %v", body["shouldAlert"])
	}
	data, ok := body["crisisData"].(map[string]any)
	if !ok {
		t.Fatalf("expected crisisData object, got %v", body["crisisData"])
	}
	if data["riskLevel"] != "imminent" || data["requiresScreening"] != true {
		t.Fatalf("unexpected crisis data %v", data)
	}
}

func TestChatErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed body", body: `{"message":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"msg":"hi"}`, status: http.StatusBadRequest},
		{name: "empty message", body: `{"message":""}`, err: companion.ErrEmptyMessage, status: http.StatusBadRequest},
		{name: "generation failed", body: `{"message":"hi"}`, err: fmt.Errorf("%w: throttled", companion.ErrGenerationFailed), status: http.StatusBadGateway},
		{name: "unexpected", body: `{"message":"hi"}`, err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newCompanionRouter(&stubChat{err: tc.err}, nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

type stubTurns struct {
	turns []companion.ChatTurn
	err   error
	limit int
}

func (s *stubTurns) Recent(_ context.Context, _ string, limit int) ([]companion.ChatTurn, error) {
	s.limit = limit
	return s.turns, s.err
}

func TestChatHydratesHistoryFromTurns(t *testing.T) {
	chat := &stubChat{resp: &companion.Response{Response: "ok"}}
	turns := &stubTurns{turns: []companion.ChatTurn{
		{Role: "user", Content: "hello", CreatedAt: time.Now()},
		{Role: "assistant", Content: "hi there", CreatedAt: time.Now()},
	}}
	router := newCompanionRouter(chat, turns)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"again","conversationId":"conv-2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	got := chat.request()
	if len(got.History) != 2 || got.History[1].Content != "hi there" {
		t.Fatalf("expected hydrated history, got %+v", got.History)
	}
	if turns.limit != defaultHistoryLimit {
		t.Fatalf("expected limit %d, got %d", defaultHistoryLimit, turns.limit)
	}
}

func TestChatUsesAuthenticatedUser(t *testing.T) {
	chat := &stubChat{resp: &companion.Response{Response: "ok"}}
	h := NewCompanionHandler(chat, nil, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hi","userId":"spoofed"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "real-user"))
	rec := httptest.NewRecorder()
	middleware.UserJWT("secret")(http.HandlerFunc(h.Chat)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := chat.request().UserID; got != "real-user" {
		t.Fatalf("expected authenticated user id, got %q", got)
	}
}

func TestAnswerScreeningStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "ok", status: http.StatusOK},
		{name: "no session", err: cssrs.ErrNoSession, status: http.StatusNotFound},
		{name: "out of order", err: fmt.Errorf("%w: expected 2", cssrs.ErrOutOfOrder), status: http.StatusBadRequest},
		{name: "invalid answer", err: cssrs.ErrInvalidAnswer, status: http.StatusBadRequest},
		{name: "unavailable", err: companion.ErrScreeningUnavailable, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &stubChat{answerErr: tc.err, reply: &companion.ScreeningReply{Response: "next"}}
			router := newCompanionRouter(chat, nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/screening/answers",
				strings.NewReader(`{"conversationId":"conv-3","questionNumber":1,"answer":"yes"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestAnswerScreeningRequiresConversation(t *testing.T) {
	router := newCompanionRouter(&stubChat{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/screening/answers", strings.NewReader(`{"questionNumber":1,"answer":"yes"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestConcludeScreening(t *testing.T) {
	verdict := cssrs.Verdict{FinalRiskLevel: crisis.RiskLow}
	chat := &stubChat{reply: &companion.ScreeningReply{Response: "thanks", Complete: true, Verdict: &verdict}}
	router := newCompanionRouter(chat, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/screening/conv-4/conclude", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var body companion.ScreeningReply
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Complete || body.Verdict == nil || body.Verdict.FinalRiskLevel != crisis.RiskLow {
		t.Fatalf("unexpected reply %+v", body)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	turns := &stubTurns{turns: []companion.ChatTurn{{ID: "t1", ConversationID: "conv-5", Role: "user", Content: "hi"}}}
	router := newCompanionRouter(&stubChat{}, turns)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-5/turns?limit=500", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if turns.limit != maxHistoryLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxHistoryLimit, turns.limit)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-5/turns?limit=abc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHistoryNotConfigured(t *testing.T) {
	router := newCompanionRouter(&stubChat{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-6/turns", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected status %d, got %d", http.StatusNotImplemented, rec.Code)
	}
}

func TestStreamSendsChunksThenDone(t *testing.T) {
	chat := &stubChat{
		chunks: []string{"Take a ", "slow breath."},
		resp:   &companion.Response{Response: "Take a slow breath.", ResearchUsed: []string{}},
	}
	srv := httptest.NewServer(newCompanionRouter(chat, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/chat/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(companion.Request{UserMessage: "I'm tense", ConversationID: "conv-7"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var frames []StreamFrame
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f StreamFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		frames = append(frames, f)
		if f.Type != FrameChunk {
			break
		}
	}

	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d: %+v", len(frames), frames)
	}
	if frames[0].Text != "Take a " || frames[1].Text != "slow breath." {
		t.Fatalf("unexpected chunks %+v", frames[:2])
	}
	if frames[2].Type != FrameDone || frames[2].Response == nil || frames[2].Response.Response != "Take a slow breath." {
		t.Fatalf("unexpected final frame %+v", frames[2])
	}

	// The connection stays open for the next message.
	if err := conn.WriteJSON(companion.Request{UserMessage: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f StreamFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Type != FrameError || f.Error != "message is required" {
		t.Fatalf("expected error frame, got %+v", f)
	}
}

func TestHealthCheck(t *testing.T) {
	router := newCompanionRouter(&stubChat{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", resp["status"])
	}
}
