package domain

import (
	"time"
)

// TaskPayload is the completed task handed to the persistence collaborator.
// DueAt is epoch milliseconds encoded as a string.
type TaskPayload struct {
	ChildID string `json:"childId"`
	Title   string `json:"title"`
	DueAt   string `json:"dueAt"`
	Points  int    `json:"points"`
}

// Task is a persisted, completed task record.
type Task struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ChildID   string    `json:"child_id"`
	ChildName string    `json:"child_name"`
	Title     string    `json:"title"`
	DueAt     time.Time `json:"due_at"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one inbound utterance.
type Turn struct {
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	TurnID     string  `json:"turnId"`
	TurnIndex  int     `json:"turnIndex"`
	Transcript string  `json:"transcript"`
	Roster     []Child `json:"roster,omitempty"`
}

// TurnRecord is the audit entry stored for every accepted turn.
type TurnRecord struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	TurnID     string    `json:"turn_id"`
	TurnIndex  int       `json:"turn_index"`
	Transcript string    `json:"transcript"`
	Intent     Intent    `json:"intent"`
	Speak      string    `json:"speak"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
