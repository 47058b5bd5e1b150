// Package store persists completed tasks and the turn log.
package store

import (
	"context"
	"time"

	"github.com/ashureev/voicetask/internal/domain"
)

// Repository is the persistence collaborator of the dialogue engine.
type Repository interface {
	// SaveTask inserts a confirmed task and returns its id.
	SaveTask(ctx context.Context, task *domain.Task) (int64, error)

	// ListTasks returns the user's tasks, newest first.
	ListTasks(ctx context.Context, userID string) ([]*domain.Task, error)

	// AppendTurn records one accepted turn.
	AppendTurn(ctx context.Context, rec *domain.TurnRecord) error

	// ListTurns returns a session's turns in turn order.
	ListTurns(ctx context.Context, sessionID string) ([]*domain.TurnRecord, error)

	// PruneTurns deletes turn records older than the retention window.
	PruneTurns(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
