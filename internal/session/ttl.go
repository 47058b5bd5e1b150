package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the TTL worker purges expired sessions.
const DefaultSweepInterval = 2 * time.Minute

// TurnPruner deletes turn log entries older than a retention window.
type TurnPruner interface {
	PruneTurns(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SweepConfig configures the TTL worker.
type SweepConfig struct {
	Interval      time.Duration
	TurnRetention time.Duration
	Pruner        TurnPruner // optional
}

// StartTTLWorker runs a background goroutine that periodically purges expired
// sessions and prunes the turn log. The returned channel closes once the
// worker has exited after ctx is done.
func StartTTLWorker(ctx context.Context, store *Store, cfg SweepConfig) <-chan struct{} {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", store.TTL())

		for {
			select {
			case <-ticker.C:
				sweep(ctx, store, cfg)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, store *Store, cfg SweepConfig) {
	if removed := store.SweepExpired(); removed > 0 {
		slog.Info("TTL worker purged expired sessions", "count", removed)
	}

	if cfg.Pruner == nil || cfg.TurnRetention <= 0 {
		return
	}
	deleted, err := cfg.Pruner.PruneTurns(ctx, cfg.TurnRetention)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("TTL worker: context canceled during turn log pruning", "error", err)
			return
		}
		slog.Error("TTL worker failed to prune turn log", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker pruned turn log", "count", deleted)
	}
}
