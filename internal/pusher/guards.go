package pusher

import (
	"fmt"
	"log/slog"
	"time"

	"ferry/internal/artifact"
	"ferry/internal/logging"
)

// guard applies the pre-push checks in order. An empty reason means the push
// proceeds; a non-empty reason is a successful no-op.
func (p *Pusher) guard(logger *slog.Logger, dir artifact.Dir) (string, error) {
	if !dir.HasReady() {
		return SkipNotReady, nil
	}
	if dir.HasPushed() {
		return SkipAlreadyPushed, nil
	}
	if dir.HasFailed() {
		return SkipFailed, nil
	}
	if dir.HasPushing() {
		return p.inspectLock(logger, dir)
	}
	return "", nil
}

// inspectLock decides whether an existing .PUSHING belongs to a live push or
// to one that died without cleaning up. Stale locks are reclaimed so a
// crashed worker process cannot wedge an artifact forever.
func (p *Pusher) inspectLock(logger *slog.Logger, dir artifact.Dir) (string, error) {
	age, err := dir.LockAge(p.now())
	if err != nil {
		return "", fmt.Errorf("inspect push lock: %w", err)
	}
	staleAfter := time.Duration(p.cfg.Push.StaleLockMinutes) * time.Minute
	if age < staleAfter {
		return SkipLocked, nil
	}

	logging.WarnWithContext(logger, "reclaiming stale push lock", "stale_lock_reclaimed",
		logging.Duration("lock_age", age),
		logging.Duration("stale_after", staleAfter),
		logging.String(logging.FieldImpact, "previous push presumed dead; pushing again"),
		logging.String(logging.FieldErrorHint, "raise push.stale_lock_minutes if pushes legitimately run this long"),
	)
	if err := dir.ReleaseLock(); err != nil {
		return "", fmt.Errorf("reclaim stale push lock: %w", err)
	}
	return "", nil
}
