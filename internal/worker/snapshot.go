package worker

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hyperengineering/caseload/internal/snapshot"
)

// SnapshotStore defines the store operations needed by the snapshot worker.
type SnapshotStore interface {
	GenerateSnapshot(ctx context.Context, path string) error
}

// SnapshotWorker writes a database snapshot into dir on each interval and
// hands it to the uploader.
type SnapshotWorker struct {
	store    SnapshotStore
	uploader snapshot.Uploader
	dir      string
	interval time.Duration
}

// NewSnapshotWorker creates a snapshot worker. uploader may be nil, in which
// case snapshots stay local.
func NewSnapshotWorker(store SnapshotStore, uploader snapshot.Uploader, dir string, interval time.Duration) *SnapshotWorker {
	return &SnapshotWorker{
		store:    store,
		uploader: uploader,
		dir:      dir,
		interval: interval,
	}
}

// Path is where each snapshot is written.
func (w *SnapshotWorker) Path() string {
	return filepath.Join(w.dir, snapshot.CurrentName)
}

// Run starts the worker loop. Generates a snapshot immediately on start,
// then on each interval. Blocks until ctx is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"interval", w.interval.String(),
		"path", w.Path(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce generates one snapshot and uploads it. It reports whether the
// local snapshot was written; upload failures are logged and do not count.
func (w *SnapshotWorker) RunOnce(ctx context.Context) bool {
	start := time.Now()
	path := w.Path()

	slog.Info("snapshot generation started",
		"component", "worker",
		"action", "snapshot_start",
	)

	if err := w.store.GenerateSnapshot(ctx, path); err != nil {
		// Check if it's a context cancellation (graceful shutdown)
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"action", "snapshot_failed",
			"error", err,
		)
		return false
	}

	if w.uploader != nil {
		w.upload(ctx, path)
	}

	slog.Info("snapshot generation completed",
		"component", "worker",
		"action", "snapshot_complete",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}

// upload ships the snapshot off-site. Failure leaves the local snapshot valid.
func (w *SnapshotWorker) upload(ctx context.Context, path string) {
	if err := w.uploader.Upload(ctx, snapshot.CurrentName, path); err != nil {
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"error", err,
		)
		return
	}
	slog.Info("snapshot uploaded",
		"component", "worker",
		"action", "snapshot_uploaded",
	)
}
