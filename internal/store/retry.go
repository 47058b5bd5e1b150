package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
)

// isConflict reports SQLite concurrency errors (SQLITE_BUSY or "database is
// locked") that are worth retrying.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs fn, retrying conflicts with exponential backoff: 100ms, 200ms.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !isConflict(err) || i == maxRetries-1 {
			return err
		}

		delay := baseRetryDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
