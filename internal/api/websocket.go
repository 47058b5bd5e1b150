package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/voicetask/internal/dialogue"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/identity"
	"github.com/coder/websocket"
)

// Socket event types.
const (
	eventSession   = "session"
	eventTurn      = "turn"
	eventCancelled = "cancelled"
	eventError     = "error"
)

// socketRequest is one client frame. Type is "start", "turn" (default) or "cancel".
type socketRequest struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"sessionId"`
	TurnID     string         `json:"turnId"`
	TurnIndex  *int           `json:"turnIndex"`
	Transcript string         `json:"transcript"`
	Roster     []domain.Child `json:"roster"`
}

// socketEvent is one server frame.
type socketEvent struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId,omitempty"`
	Status    domain.Status          `json:"status,omitempty"`
	Session   *SessionResponse       `json:"session,omitempty"`
	Turn      *dialogue.TurnResponse `json:"turn,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
}

// ServeVoiceSocket upgrades to a websocket that carries turns in both
// directions. Each request frame gets exactly one reply frame.
func (h *VoiceHandler) ServeVoiceSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusBadRequest, dialogue.CodeInvalidRequest, "X-User-ID header or user_id query parameter is required")
		return
	}
	slog.Info("Voice socket request", "user_id", userID, "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.Register(userID, ws)
	defer h.conns.Unregister(userID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("Voice socket read ended", "error", err, "user_id", userID)
			}
			return
		}

		event := h.handleFrame(ctx, userID, data)
		if err := writeEvent(ctx, ws, event); err != nil {
			slog.Debug("Voice socket write failed", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *VoiceHandler) handleFrame(ctx context.Context, userID string, data []byte) socketEvent {
	var req socketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorEvent(fmt.Errorf("%w: malformed frame: %v", dialogue.ErrInvalidRequest, err))
	}

	switch req.Type {
	case "start":
		sess, err := h.engine.StartSession(ctx, userID, req.Roster)
		if err != nil {
			return errorEvent(err)
		}
		resp := sessionResponse(sess)
		return socketEvent{Type: eventSession, SessionID: sess.ID, Status: sess.Status, Session: &resp}

	case "cancel":
		sess, err := h.engine.CancelSession(ctx, userID, req.SessionID)
		if err != nil {
			return errorEvent(err)
		}
		return socketEvent{Type: eventCancelled, SessionID: sess.ID, Status: sess.Status}

	case "", "turn":
		turn, err := turnRequest{
			SessionID:  req.SessionID,
			TurnID:     req.TurnID,
			TurnIndex:  req.TurnIndex,
			Transcript: req.Transcript,
			Roster:     req.Roster,
		}.turn(userID)
		if err != nil {
			return errorEvent(err)
		}
		resp, err := h.engine.SubmitTurn(ctx, turn)
		if err != nil {
			return errorEvent(err)
		}
		return socketEvent{Type: eventTurn, SessionID: resp.SessionID, Status: resp.Status, Turn: resp}

	default:
		return errorEvent(fmt.Errorf("%w: unknown frame type %q", dialogue.ErrInvalidRequest, req.Type))
	}
}

func errorEvent(err error) socketEvent {
	code := dialogue.Code(err)
	msg := err.Error()
	if code == dialogue.CodeInternal {
		slog.Error("Voice socket request failed", "error", err)
		msg = "internal error"
	}
	return socketEvent{Type: eventError, Error: msg, Code: code}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, v socketEvent) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
