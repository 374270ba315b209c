package pusher

import (
	"fmt"
	"log/slog"
	"os"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/fileutil"
	"ferry/internal/logging"
)

// cleanup applies the configured post-push policy to a replicated directory.
// The artifact is already .PUSHED when this runs, so a cleanup failure never
// causes a re-transfer; it surfaces as an error for the operator.
func (p *Pusher) cleanup(logger *slog.Logger, dir artifact.Dir) error {
	switch p.cfg.Push.Cleanup {
	case config.CleanupNone:
		return nil
	case config.CleanupDelete:
		if err := os.RemoveAll(dir.Path); err != nil {
			return fmt.Errorf("delete pushed artifact %s: %w", dir.Name, err)
		}
		logger.Info("artifact deleted after push",
			logging.String(logging.FieldEventType, "cleanup_delete"),
		)
		return nil
	case config.CleanupArchive:
		target := artifact.ArchiveTarget(p.cfg.ArchiveRoot(), dir.Name, p.now())
		if err := fileutil.MoveDir(dir.Path, target); err != nil {
			return fmt.Errorf("archive pushed artifact %s: %w", dir.Name, err)
		}
		logger.Info("artifact archived after push",
			logging.String(logging.FieldEventType, "cleanup_archive"),
			logging.String("archive_path", target),
		)
		return nil
	default:
		return fmt.Errorf("unknown cleanup policy %q", p.cfg.Push.Cleanup)
	}
}
