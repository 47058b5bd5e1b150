// Package domain contains core domain types for the voice task dialogue.
package domain

import (
	"time"
)

// Status is the lifecycle state of a dialogue session.
type Status string

const (
	StatusInProgress    Status = "in_progress"
	StatusReadyToCreate Status = "ready_to_create"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// Child is one roster entry a task can be assigned to.
type Child struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session holds server-side state for one in-progress voice dialogue.
type Session struct {
	ID            string     `json:"sessionId"`
	UserID        string     `json:"userId"`
	Slots         Slots      `json:"slots"`
	Missing       []SlotName `json:"missing"`
	ExpectedSlot  SlotName   `json:"expectedSlot,omitempty"`
	Roster        []Child    `json:"childrenRoster"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	LastTurnIndex int        `json:"lastTurnIndex"`
	LastTurnID    string     `json:"lastTurnId,omitempty"`
}

// NewSession returns a fresh in-progress session with every slot missing.
// The TTL is fixed here and never extended by later turns.
func NewSession(id, userID string, roster []Child, now time.Time, ttl time.Duration) *Session {
	s := &Session{
		ID:            id,
		UserID:        userID,
		Roster:        append([]Child(nil), roster...),
		Status:        StatusInProgress,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		LastTurnIndex: -1,
	}
	s.Recompute()
	return s
}

// Recompute refreshes Missing, ExpectedSlot and a non-terminal Status from Slots.
func (s *Session) Recompute() {
	s.Missing = s.Slots.Missing()
	s.ExpectedSlot = ""
	if len(s.Missing) > 0 {
		s.ExpectedSlot = s.Missing[0]
	}
	if s.Status == StatusInProgress || s.Status == StatusReadyToCreate || s.Status == "" {
		if len(s.Missing) == 0 {
			s.Status = StatusReadyToCreate
		} else {
			s.Status = StatusInProgress
		}
	}
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Active returns true if the session still accepts turns.
func (s *Session) Active() bool {
	return s.Status == StatusInProgress
}

// ChildByID looks up a roster entry by id.
func (s *Session) ChildByID(id string) (Child, bool) {
	for _, c := range s.Roster {
		if c.ID == id {
			return c, true
		}
	}
	return Child{}, false
}

// Clone returns a deep copy so callers never alias stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Missing = append([]SlotName(nil), s.Missing...)
	c.Roster = append([]Child(nil), s.Roster...)
	return &c
}
