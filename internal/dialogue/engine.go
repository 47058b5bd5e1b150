package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/extract"
	"github.com/ashureev/voicetask/internal/session"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Engine errors. Callers map them to wire codes with Code.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session is not in progress")
)

// Wire codes.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionInactive = "SESSION_INACTIVE"
	CodeInternal        = "INTERNAL"
)

// Code returns the wire code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionInactive):
		return CodeSessionInactive
	default:
		return CodeInternal
	}
}

// TaskSink persists confirmed tasks.
type TaskSink interface {
	SaveTask(ctx context.Context, task *domain.Task) (int64, error)
}

// TurnLog records accepted turns.
type TurnLog interface {
	AppendTurn(ctx context.Context, rec *domain.TurnRecord) error
}

// TurnResponse is the result of one submitted turn.
type TurnResponse struct {
	NeedsFollowup bool                `json:"needsFollowup"`
	Missing       []domain.SlotName   `json:"missing"`
	Question      string              `json:"question"`
	Result        *domain.TaskPayload `json:"result"`
	Speak         string              `json:"speak"`
	SessionID     string              `json:"sessionId"`
	TurnID        string              `json:"turnId"`
	TurnIndex     int                 `json:"turnIndex"`
	Status        domain.Status       `json:"status"`
	Type          ReplyType           `json:"type"`
}

const (
	DefaultExtractTimeout = 8 * time.Second
	DefaultMaxConcurrent  = 16
)

// Option configures an Engine.
type Option func(*Engine)

// WithTaskSink stores confirmed tasks and completes their sessions.
func WithTaskSink(sink TaskSink) Option {
	return func(e *Engine) { e.tasks = sink }
}

// WithTurnLog records every accepted turn.
func WithTurnLog(log TurnLog) Option {
	return func(e *Engine) { e.turns = log }
}

// WithExtractTimeout bounds each extraction call.
func WithExtractTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMaxConcurrentExtractions bounds in-flight extraction calls across sessions.
func WithMaxConcurrentExtractions(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithDefaultRoster is used when a session is started without a roster.
func WithDefaultRoster(roster []domain.Child) Option {
	return func(e *Engine) { e.roster = append([]domain.Child(nil), roster...) }
}

// Engine runs the dialogue: it owns no transport and no storage beyond the
// session store, and is safe for concurrent use.
type Engine struct {
	store     *session.Store
	extractor extract.Extractor
	norm      *dates.Normalizer
	sem       *semaphore.Weighted
	timeout   time.Duration
	roster    []domain.Child
	tasks     TaskSink
	turns     TurnLog
}

// NewEngine creates an Engine.
func NewEngine(store *session.Store, ex extract.Extractor, norm *dates.Normalizer, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		extractor: ex,
		norm:      norm,
		sem:       semaphore.NewWeighted(DefaultMaxConcurrent),
		timeout:   DefaultExtractTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalizer returns the engine's date normalizer.
func (e *Engine) Normalizer() *dates.Normalizer {
	return e.norm
}

// StartSession opens a new session for userID, cancelling any in-progress one.
// A nil roster falls back to the default roster.
func (e *Engine) StartSession(_ context.Context, userID string, roster []domain.Child) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if roster == nil {
		roster = e.roster
	}
	sess := e.store.Start(userID, roster)
	slog.Info("Voice session started", "user_id", userID, "session_id", sess.ID, "roster_size", len(sess.Roster))
	return sess, nil
}

// SubmitTurn processes one utterance. A turn without a session id joins the
// user's in-progress session, or starts one when there is none. Stale or duplicate turns are acknowledged without changing state.
func (e *Engine) SubmitTurn(ctx context.Context, turn domain.Turn) (*TurnResponse, error) {
	turn.UserID = strings.TrimSpace(turn.UserID)
	turn.SessionID = strings.TrimSpace(turn.SessionID)
	if turn.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if turn.TurnIndex < 0 {
		return nil, fmt.Errorf("%w: turnIndex must not be negative", ErrInvalidRequest)
	}
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}

	if turn.SessionID == "" {
		if active := e.store.ListActiveByUser(turn.UserID); len(active) > 0 {
			turn.SessionID = active[0].ID
		} else {
			sess, err := e.StartSession(ctx, turn.UserID, turn.Roster)
			if err != nil {
				return nil, err
			}
			turn.SessionID = sess.ID
		}
	}

	sess, accepted, err := e.accept(turn)
	if err != nil {
		return nil, err
	}
	if !accepted {
		slog.Info("Ignoring stale turn", "session_id", turn.SessionID, "turn_index", turn.TurnIndex, "last_turn_index", sess.LastTurnIndex)
		return ignored(sess, turn), nil
	}

	delta := e.extract(ctx, sess, turn.Transcript)

	unlock := e.store.Lock(turn.SessionID)
	current, err := e.owned(turn.SessionID, turn.UserID)
	if err != nil {
		unlock()
		return nil, err
	}
	if current.LastTurnIndex != turn.TurnIndex {
		// A later turn was accepted while this one was being extracted.
		unlock()
		return ignored(current, turn), nil
	}
	if err := checkActive(current); err != nil {
		unlock()
		return nil, err
	}
	next := Merge(current, delta, e.norm)
	reply := Respond(next, delta, e.norm)
	if reply.Type == ReplyConfirmed && e.tasks != nil {
		// The session keeps its pre-turn state when the task cannot be saved.
		if err := e.complete(ctx, next, reply.Result); err != nil {
			unlock()
			return nil, err
		}
		next.Status = domain.StatusCompleted
	}
	if !e.store.Put(next) {
		unlock()
		return nil, fmt.Errorf("%w: session expired during turn", ErrSessionNotFound)
	}
	unlock()

	slog.Info("Turn processed",
		"session_id", next.ID,
		"turn_index", turn.TurnIndex,
		"intent", delta.Intent,
		"status", next.Status,
		"missing", len(next.Missing),
	)
	e.logTurn(ctx, turn, delta.Intent, reply.Speak, next.Status)

	return &TurnResponse{
		NeedsFollowup: reply.Type == ReplyFollowup,
		Missing:       missingList(next),
		Question:      reply.Question,
		Result:        reply.Result,
		Speak:         reply.Speak,
		SessionID:     next.ID,
		TurnID:        turn.TurnID,
		TurnIndex:     turn.TurnIndex,
		Status:        next.Status,
		Type:          reply.Type,
	}, nil
}

// CancelSession cancels an in-progress session owned by userID.
func (e *Engine) CancelSession(_ context.Context, userID, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: userId and sessionId are required", ErrInvalidRequest)
	}

	unlock := e.store.Lock(sessionID)
	defer unlock()

	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := checkActive(sess); err != nil {
		return nil, err
	}
	sess, ok := e.store.Update(sessionID, func(s *domain.Session) {
		s.Status = domain.StatusCancelled
	})
	if !ok {
		return nil, ErrSessionNotFound
	}
	slog.Info("Voice session cancelled", "user_id", userID, "session_id", sessionID)
	return sess, nil
}

// DebugSessions returns every live session of userID.
func (e *Engine) DebugSessions(userID string) []*domain.Session {
	return e.store.ListByUser(userID)
}

// accept runs the turn ordering guard. A stale index is acknowledged even on a
// finished session so retrying clients see no error. An accepted turn is
// recorded as the latest one before extraction so it can never be processed twice.
func (e *Engine) accept(turn domain.Turn) (*domain.Session, bool, error) {
	unlock := e.store.Lock(turn.SessionID)
	defer unlock()

	sess, err := e.owned(turn.SessionID, turn.UserID)
	if err != nil {
		return nil, false, err
	}
	if turn.TurnIndex <= sess.LastTurnIndex {
		return sess, false, nil
	}
	if err := checkActive(sess); err != nil {
		return nil, false, err
	}

	sess, ok := e.store.Update(turn.SessionID, func(s *domain.Session) {
		s.LastTurnIndex = turn.TurnIndex
		s.LastTurnID = turn.TurnID
	})
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	return sess, true, nil
}

// owned returns the live session if userID owns it. Sessions of other users
// are reported as not found.
func (e *Engine) owned(sessionID, userID string) (*domain.Session, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok || sess.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func checkActive(sess *domain.Session) error {
	if !sess.Active() {
		return fmt.Errorf("%w: %s is %s", ErrSessionInactive, sess.ID, sess.Status)
	}
	return nil
}

// extract calls the extractor outside any session lock, bounded by the
// engine-wide semaphore and the extraction timeout.
func (e *Engine) extract(ctx context.Context, sess *domain.Session, utterance string) domain.SlotDelta {
	if strings.TrimSpace(utterance) == "" {
		return domain.NoopDelta()
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("Extraction slot not acquired", "session_id", sess.ID, "error", err)
		return domain.NoopDelta()
	}
	defer e.sem.Release(1)

	return extract.Safe(ctx, e.extractor, extract.Request{
		Utterance:    utterance,
		Slots:        sess.Slots,
		ExpectedSlot: sess.ExpectedSlot,
		Roster:       sess.Roster,
	})
}

// complete stores the confirmed task. The caller holds the session lock.
func (e *Engine) complete(ctx context.Context, sess *domain.Session, payload *domain.TaskPayload) error {
	name := sess.Slots.AssignedChildName
	if c, ok := sess.ChildByID(payload.ChildID); ok {
		name = c.Name
	}
	id, err := e.tasks.SaveTask(ctx, &domain.Task{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		ChildID:   payload.ChildID,
		ChildName: name,
		Title:     payload.Title,
		DueAt:     DueTime(sess.Slots, e.norm),
		Points:    payload.Points,
		CreatedAt: e.store.Now(),
	})
	if err != nil {
		slog.Error("Failed to save confirmed task", "session_id", sess.ID, "error", err)
		return fmt.Errorf("save task: %w", err)
	}
	slog.Info("Task created", "session_id", sess.ID, "task_id", id, "child_id", payload.ChildID)
	return nil
}

func (e *Engine) logTurn(ctx context.Context, turn domain.Turn, intent domain.Intent, speak string, status domain.Status) {
	if e.turns == nil {
		return
	}
	err := e.turns.AppendTurn(ctx, &domain.TurnRecord{
		SessionID:  turn.SessionID,
		UserID:     turn.UserID,
		TurnID:     turn.TurnID,
		TurnIndex:  turn.TurnIndex,
		Transcript: turn.Transcript,
		Intent:     intent,
		Speak:      speak,
		Status:     status,
		CreatedAt:  e.store.Now(),
	})
	if err != nil {
		slog.Warn("Failed to append turn log", "session_id", turn.SessionID, "error", err)
	}
}

func ignored(sess *domain.Session, turn domain.Turn) *TurnResponse {
	return &TurnResponse{
		NeedsFollowup: sess.Active(),
		Missing:       missingList(sess),
		Speak:         SpeakIgnored,
		SessionID:     sess.ID,
		TurnID:        turn.TurnID,
		TurnIndex:     turn.TurnIndex,
		Status:        sess.Status,
		Type:          ReplyIgnored,
	}
}

func missingList(sess *domain.Session) []domain.SlotName {
	return append(make([]domain.SlotName, 0, len(sess.Missing)), sess.Missing...)
}
