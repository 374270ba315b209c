package watcher

import (
	"context"
	"errors"
	"time"

	"ferry/internal/artifact"
	"ferry/internal/logging"
)

// Sweep enumerates the artifact root once, promotes completed directories,
// and queues every ready one. It returns the number of artifacts queued.
// Directories that are pushed, terminally failed, or mid-push are skipped; a
// stale push lock does not block queueing, the pusher reclaims it.
func (w *Watcher) Sweep(ctx context.Context, trigger Trigger) (int, error) {
	dirs, err := artifact.List(w.cfg.Sync.ArtifactRoot, w.cfg.ArchiveRoot())
	if err != nil {
		return 0, err
	}

	queued := 0
	failed := 0
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		if dir.HasFailed() {
			failed++
			continue
		}
		if dir.HasPushed() {
			continue
		}
		if dir.HasPushing() && w.lockFresh(dir) {
			continue
		}

		promoted, err := dir.Promote()
		if err != nil {
			logging.WarnWithContext(w.logger, "failed to promote artifact", "promote_failed",
				logging.String(logging.FieldArtifact, dir.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check artifact directory permissions"),
			)
			continue
		}
		if promoted {
			w.logger.Info("artifact promoted",
				logging.String(logging.FieldEventType, "artifact_promoted"),
				logging.String(logging.FieldArtifact, dir.Name),
				logging.String(logging.FieldTrigger, string(trigger)),
			)
		}
		if !dir.HasReady() {
			continue
		}
		if w.enqueue(ctx, dir, trigger) {
			queued++
		}
	}

	w.metrics.SetFailedArtifacts(failed)
	now := w.now()
	w.lastSweep.Store(now.Unix())
	w.metrics.SetLastSweep(now)
	return queued, nil
}

// lockFresh reports whether an existing .PUSHING lock is younger than the
// stale threshold. Unreadable locks count as stale so the pusher's guard can
// re-check them atomically.
func (w *Watcher) lockFresh(dir artifact.Dir) bool {
	age, err := dir.LockAge(w.now())
	if err != nil {
		return false
	}
	return age < time.Duration(w.cfg.Push.StaleLockMinutes)*time.Minute
}

// sweepLoop runs an immediate catch-up sweep and then one per interval.
func (w *Watcher) sweepLoop(ctx context.Context) {
	w.sweepOnce(ctx)

	ticker := time.NewTicker(time.Duration(w.cfg.Watch.SweepInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *Watcher) sweepOnce(ctx context.Context) {
	queued, err := w.Sweep(ctx, TriggerSweep)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.ErrorWithContext(w.logger, "sweep failed", "sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the artifact root is mounted and readable"),
		)
		return
	}
	if queued > 0 {
		w.logger.Debug("sweep queued artifacts", logging.Int("queued", queued))
	}
}
