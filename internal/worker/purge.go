package worker

import (
	"context"
	"log/slog"
	"time"
)

// PurgeStore defines the store operations needed by the purge worker.
type PurgeStore interface {
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// PurgeWorker hard-deletes clients that were soft-deleted more than
// retention ago, together with their child records.
type PurgeWorker struct {
	store     PurgeStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewPurgeWorker creates a worker with the given store, interval, and retention.
func NewPurgeWorker(store PurgeStore, interval, retention time.Duration) *PurgeWorker {
	return &PurgeWorker{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does NOT run immediately on start; a restart loop should not purge early.
func (w *PurgeWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "purge",
		"interval", w.interval.String(),
		"retention", w.retention.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "purge",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single purge cycle and returns the number of clients removed.
func (w *PurgeWorker) RunOnce(ctx context.Context) int64 {
	start := w.now()
	cutoff := start.Add(-w.retention)

	slog.Debug("purge cycle started",
		"component", "worker",
		"action", "purge_start",
		"cutoff", cutoff.Format(time.RFC3339),
	)

	purged, err := w.store.PurgeDeleted(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		slog.Error("purge failed",
			"component", "worker",
			"action", "purge_failed",
			"error", err,
		)
		return 0
	}

	slog.Info("purge cycle completed",
		"component", "worker",
		"action", "purge_complete",
		"purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
