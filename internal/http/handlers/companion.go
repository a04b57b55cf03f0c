package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/wellness-companion/internal/companion"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
	"github.com/wolfman30/wellness-companion/internal/http/middleware"
	"github.com/wolfman30/wellness-companion/internal/memory"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

const (
	maxBodyBytes        = 64 << 10
	defaultHistoryLimit = 10
	maxHistoryLimit     = 200
)

// ChatService is the orchestrator surface exposed over HTTP.
type ChatService interface {
	Respond(ctx context.Context, req companion.Request) (*companion.Response, error)
	RespondStream(ctx context.Context, req companion.Request, onChunk func(string) error) (*companion.Response, error)
	AnswerScreening(ctx context.Context, ans companion.ScreeningAnswer) (*companion.ScreeningReply, error)
	ConcludeScreening(ctx context.Context, conversationID, userID string) (*companion.ScreeningReply, error)
}

// TurnReader loads persisted chat turns.
type TurnReader interface {
	Recent(ctx context.Context, conversationID string, limit int) ([]companion.ChatTurn, error)
}

// CompanionHandler serves the chat, stream, screening and history endpoints.
type CompanionHandler struct {
	chat   ChatService
	turns  TurnReader
	stream *streamer
	logger *logging.Logger
}

func NewCompanionHandler(chat ChatService, turns TurnReader, origins *middleware.OriginPolicy, logger *logging.Logger) *CompanionHandler {
	if chat == nil {
		panic("handlers: chat service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &CompanionHandler{chat: chat, turns: turns, logger: logger}
	h.stream = newStreamer(h, origins)
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

// Chat handles POST /v1/chat.
func (h *CompanionHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req companion.Request
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req = h.prepareRequest(r.Context(), req)

	resp, err := h.chat.Respond(r.Context(), req)
	if err != nil {
		h.writeChatError(w, req.ConversationID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Stream handles GET /v1/chat/stream as a WebSocket.
func (h *CompanionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.stream.serve(w, r)
}

// AnswerScreening handles POST /v1/screening/answers.
func (h *CompanionHandler) AnswerScreening(w http.ResponseWriter, r *http.Request) {
	var ans companion.ScreeningAnswer
	if err := decodeJSON(w, r, &ans); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(ans.ConversationID) == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "conversationId is required"})
		return
	}
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		ans.UserID = userID
	}

	reply, err := h.chat.AnswerScreening(r.Context(), ans)
	if err != nil {
		h.writeScreeningError(w, ans.ConversationID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

// ConcludeScreening handles POST /v1/screening/{conversationID}/conclude.
func (h *CompanionHandler) ConcludeScreening(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	userID, _ := middleware.UserIDFromContext(r.Context())

	reply, err := h.chat.ConcludeScreening(r.Context(), conversationID, userID)
	if err != nil {
		h.writeScreeningError(w, conversationID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

// History handles GET /v1/conversations/{conversationID}/turns.
func (h *CompanionHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		h.writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "history is not configured"})
		return
	}
	conversationID := chi.URLParam(r, "conversationID")
	limit := defaultHistoryLimit * 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	turns, err := h.turns.Recent(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("failed to load chat history", "error", err, "conversation_id", conversationID)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load history"})
		return
	}
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		for _, t := range turns {
			if t.UserID != "" && t.UserID != userID {
				h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
				return
			}
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversationId": conversationID, "turns": turns})
}

// HealthCheck handles GET /health.
func (h *CompanionHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// prepareRequest applies the authenticated user and, when the client sent no
// history, hydrates the window from persisted turns.
func (h *CompanionHandler) prepareRequest(ctx context.Context, req companion.Request) companion.Request {
	if userID, ok := middleware.UserIDFromContext(ctx); ok {
		req.UserID = userID
	}
	if len(req.History) > 0 || h.turns == nil || req.ConversationID == "" {
		return req
	}
	turns, err := h.turns.Recent(ctx, req.ConversationID, defaultHistoryLimit)
	if err != nil {
		h.logger.Warn("failed to hydrate history", "error", err, "conversation_id", req.ConversationID)
		return req
	}
	history := make([]memory.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, memory.Message{Role: t.Role, Content: t.Content, Timestamp: t.CreatedAt})
	}
	req.History = history
	return req
}

func (h *CompanionHandler) writeChatError(w http.ResponseWriter, conversationID string, err error) {
	switch {
	case errors.Is(err, companion.ErrEmptyMessage):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
	case errors.Is(err, companion.ErrGenerationFailed):
		h.logger.Error("chat generation failed", "error", err, "conversation_id", conversationID)
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "the companion could not respond right now, please try again"})
	default:
		h.logger.Error("chat request failed", "error", err, "conversation_id", conversationID)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to process message"})
	}
}

func (h *CompanionHandler) writeScreeningError(w http.ResponseWriter, conversationID string, err error) {
	switch {
	case errors.Is(err, cssrs.ErrNoSession):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no screening in progress"})
	case errors.Is(err, cssrs.ErrOutOfOrder), errors.Is(err, cssrs.ErrInvalidAnswer):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, cssrs.ErrComplete):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "screening already complete"})
	case errors.Is(err, companion.ErrScreeningUnavailable):
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "screening is not available"})
	default:
		h.logger.Error("screening request failed", "error", err, "conversation_id", conversationID)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to record screening answer"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *CompanionHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
