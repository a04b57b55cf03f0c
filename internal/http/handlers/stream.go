package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/wellness-companion/internal/companion"
	"github.com/wolfman30/wellness-companion/internal/http/middleware"
)

const streamWriteWait = 10 * time.Second

// Stream frame types.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// StreamFrame is one server-to-client WebSocket message. A reply is zero or more
// chunk frames followed by exactly one done or error frame.
type StreamFrame struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	Response *companion.Response `json:"response,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type streamer struct {
	h        *CompanionHandler
	upgrader websocket.Upgrader
}

func newStreamer(h *CompanionHandler, origins *middleware.OriginPolicy) *streamer {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if origins != nil {
		upgrader.CheckOrigin = origins.CheckOrigin
	}
	return &streamer{h: h, upgrader: upgrader}
}

// serve reads one companion.Request per client message and streams the reply.
func (s *streamer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	for {
		var req companion.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		req = s.h.prepareRequest(ctx, req)

		resp, err := s.h.chat.RespondStream(ctx, req, func(text string) error {
			return s.write(conn, StreamFrame{Type: FrameChunk, Text: text})
		})
		if err != nil {
			msg := "the companion could not respond right now, please try again"
			if errors.Is(err, companion.ErrEmptyMessage) {
				msg = "message is required"
			} else {
				s.h.logger.Error("stream generation failed", "error", err, "conversation_id", req.ConversationID)
			}
			if werr := s.write(conn, StreamFrame{Type: FrameError, Error: msg}); werr != nil {
				return
			}
			continue
		}
		if err := s.write(conn, StreamFrame{Type: FrameDone, Response: resp}); err != nil {
			s.h.logger.Warn("websocket write failed", "error", err, "conversation_id", req.ConversationID)
			return
		}
	}
}

func (s *streamer) write(conn *websocket.Conn, frame StreamFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
