package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/voicetask/internal/dialogue"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/identity"
	"github.com/go-chi/chi/v5"
)

// VoiceHandler handles the voice dialogue endpoints.
type VoiceHandler struct {
	*Handler
}

// NewVoiceHandler creates a new voice handler.
func NewVoiceHandler(base *Handler) *VoiceHandler {
	return &VoiceHandler{Handler: base}
}

// RegisterRoutes registers voice and task routes.
func (h *VoiceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/voice", func(r chi.Router) {
			r.Post("/sessions", h.StartSession)
			r.Post("/sessions/{sessionID}/cancel", h.CancelSession)
			r.Post("/turns", h.SubmitTurn)
			if h.debug {
				r.Get("/debug/sessions", h.DebugSessions)
			}
		})
		r.Get("/tasks", h.ListTasks)
	})
	r.Get("/ws/voice", h.ServeVoiceSocket)
}

type startRequest struct {
	UserID string         `json:"userId"`
	Roster []domain.Child `json:"roster"`
}

// SessionResponse describes a started or cancelled session.
type SessionResponse struct {
	SessionID      string         `json:"sessionId"`
	Status         domain.Status  `json:"status"`
	ExpiresAt      time.Time      `json:"expiresAt"`
	ChildrenRoster []domain.Child `json:"childrenRoster"`
}

func sessionResponse(sess *domain.Session) SessionResponse {
	roster := sess.Roster
	if roster == nil {
		roster = []domain.Child{}
	}
	return SessionResponse{
		SessionID:      sess.ID,
		Status:         sess.Status,
		ExpiresAt:      sess.ExpiresAt,
		ChildrenRoster: roster,
	}
}

// StartSession opens a new dialogue for the caller.
func (h *VoiceHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		engineError(w, err)
		return
	}

	sess, err := h.engine.StartSession(r.Context(), identity.Resolve(r.Context(), req.UserID), req.Roster)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusCreated, sessionResponse(sess))
}

type turnRequest struct {
	UserID     string         `json:"userId"`
	SessionID  string         `json:"sessionId"`
	TurnID     string         `json:"turnId"`
	TurnIndex  *int           `json:"turnIndex"`
	Transcript string         `json:"transcript"`
	Roster     []domain.Child `json:"roster"`
}

func (req turnRequest) turn(userID string) (domain.Turn, error) {
	if req.TurnIndex == nil {
		return domain.Turn{}, fmt.Errorf("%w: turnIndex is required", dialogue.ErrInvalidRequest)
	}
	return domain.Turn{
		UserID:     userID,
		SessionID:  req.SessionID,
		TurnID:     req.TurnID,
		TurnIndex:  *req.TurnIndex,
		Transcript: req.Transcript,
		Roster:     req.Roster,
	}, nil
}

// SubmitTurn processes one utterance.
func (h *VoiceHandler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(r, &req); err != nil {
		engineError(w, err)
		return
	}
	turn, err := req.turn(identity.Resolve(r.Context(), req.UserID))
	if err != nil {
		engineError(w, err)
		return
	}

	resp, err := h.engine.SubmitTurn(r.Context(), turn)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// CancelSession cancels the caller's in-progress session.
func (h *VoiceHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		engineError(w, err)
		return
	}
	userID := identity.Resolve(r.Context(), req.UserID)
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.engine.CancelSession(r.Context(), userID, sessionID)
	if err != nil {
		engineError(w, err)
		return
	}

	if n := h.conns.Broadcast(userID, socketEvent{Type: eventCancelled, SessionID: sess.ID, Status: sess.Status}); n > 0 {
		slog.Debug("Notified voice sockets of cancellation", "user_id", userID, "sockets", n)
	}
	JSON(w, http.StatusOK, sessionResponse(sess))
}

// DebugSession is one entry of the debug dump.
type DebugSession struct {
	SessionID     string            `json:"sessionId"`
	Status        domain.Status     `json:"status"`
	Slots         domain.Slots      `json:"slots"`
	Missing       []domain.SlotName `json:"missing"`
	ExpectedSlot  domain.SlotName   `json:"expectedSlot,omitempty"`
	LastTurnIndex int               `json:"lastTurnIndex"`
	LastTurnID    string            `json:"lastTurnId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

// DebugSessions dumps the caller's live sessions.
func (h *VoiceHandler) DebugSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.Resolve(r.Context(), r.URL.Query().Get("userId"))
	if userID == "" {
		Error(w, http.StatusBadRequest, dialogue.CodeInvalidRequest, "userId is required")
		return
	}

	sessions := h.engine.DebugSessions(userID)
	out := make([]DebugSession, 0, len(sessions))
	for _, s := range sessions {
		missing := s.Missing
		if missing == nil {
			missing = []domain.SlotName{}
		}
		out = append(out, DebugSession{
			SessionID:     s.ID,
			Status:        s.Status,
			Slots:         s.Slots,
			Missing:       missing,
			ExpectedSlot:  s.ExpectedSlot,
			LastTurnIndex: s.LastTurnIndex,
			LastTurnID:    s.LastTurnID,
			CreatedAt:     s.CreatedAt,
			ExpiresAt:     s.ExpiresAt,
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"userId":   userID,
		"sessions": out,
	})
}

// ListTasks returns the caller's persisted tasks.
func (h *VoiceHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID := identity.Resolve(r.Context(), r.URL.Query().Get("userId"))
	if userID == "" {
		Error(w, http.StatusBadRequest, dialogue.CodeInvalidRequest, "userId is required")
		return
	}
	if h.repo == nil {
		Error(w, http.StatusServiceUnavailable, dialogue.CodeInternal, "task storage is not configured")
		return
	}

	tasks, err := h.repo.ListTasks(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list tasks", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, dialogue.CodeInternal, "failed to list tasks")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}
