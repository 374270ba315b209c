package pusher

import (
	"context"
	"log/slog"
	"time"

	"ferry/internal/artifact"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/services"
)

// recordFailure persists a failed attempt. Below the attempt ceiling the
// directory stays .READY and the watcher retries it; at the ceiling the
// directory goes terminal: .FAILED sentinel, ledger failure, operator alert.
func (p *Pusher) recordFailure(ctx context.Context, logger *slog.Logger, dir artifact.Dir, attempt int, duration time.Duration, cause error) {
	terminal := attempt >= p.cfg.Push.MaxAttempts
	details := services.Details(cause)

	if err := p.store.MarkFailed(ctx, dir.Name, cause.Error(), terminal); err != nil {
		logging.ErrorWithContext(logger, "failed to record push failure in ledger", "ledger_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database in the state directory"),
		)
	}
	p.metrics.RecordPush(metrics.ResultFailed, duration, 0)

	if !terminal {
		logging.ErrorWithContext(logger, "push failed; artifact stays ready for retry", "push_failed",
			logging.Error(cause),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", p.cfg.Push.MaxAttempts),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
		)
		return
	}

	if err := dir.MarkFailed(p.now(), cause.Error()); err != nil {
		logging.ErrorWithContext(logger, "failed to write failed sentinel", "sentinel_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check artifact directory permissions"),
		)
	}
	p.metrics.IncFailedArtifacts()
	if err := p.notifier.NotifyArtifactFailed(ctx, dir.Name, attempt, cause); err != nil {
		logging.WarnWithContext(logger, "failure notification failed", "notification_failed", logging.Error(err))
	}
	logging.ErrorWithContext(logger, "push failed terminally", "push_failed_terminal",
		logging.Error(cause),
		logging.Int("attempt", attempt),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, "fix the cause, then remove the .FAILED sentinel to retry"),
		logging.Alert("operator"),
	)
}
