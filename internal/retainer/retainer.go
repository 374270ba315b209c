package retainer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"ferry/internal/config"
	"ferry/internal/fileutil"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/notifications"
)

// Report summarizes one prune cycle.
type Report struct {
	AgePruned   int
	SpacePruned int
	Reclaimed   int64
	FreeBytes   uint64
	Shortfall   bool
}

// Retainer owns archive pruning for one worker.
type Retainer struct {
	cfg       *config.Config
	notifier  notifications.Service
	metrics   *metrics.Collector
	logger    *slog.Logger
	freeSpace func(path string) (uint64, error)
}

// Option customizes a Retainer.
type Option func(*Retainer)

// WithFreeSpace replaces the filesystem free-space probe, for tests.
func WithFreeSpace(probe func(path string) (uint64, error)) Option {
	return func(r *Retainer) {
		if probe != nil {
			r.freeSpace = probe
		}
	}
}

// New builds a Retainer.
func New(cfg *config.Config, notifier notifications.Service, collector *metrics.Collector, logger *slog.Logger, opts ...Option) (*Retainer, error) {
	if cfg == nil {
		return nil, errors.New("retainer: config is required")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Retainer{
		cfg:       cfg,
		notifier:  notifier,
		metrics:   collector,
		logger:    logging.NewComponentLogger(logger, "retainer"),
		freeSpace: statfsFree,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run prunes once immediately and then once per retention sweep interval
// until ctx is done. An in-progress prune completes before exit.
func (r *Retainer) Run(ctx context.Context) error {
	r.logger.Info("retainer started",
		logging.String(logging.FieldEventType, "retainer_start"),
		logging.String("archive_root", r.cfg.ArchiveRoot()),
		logging.Int("retention_days", r.cfg.Retention.Days),
		logging.Int("min_free_gib", r.cfg.Retention.MinFreeGiB),
	)

	ticker := time.NewTicker(time.Duration(r.cfg.Retention.SweepInterval) * time.Second)
	defer ticker.Stop()
	for {
		if _, err := r.Prune(ctx); err != nil {
			logging.ErrorWithContext(r.logger, "retention cycle failed", "prune_cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the archive root is mounted and readable"),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Prune runs one retention cycle: age pruning, then space pruning while the
// free-space floor is configured and unmet.
func (r *Retainer) Prune(ctx context.Context) (Report, error) {
	var report Report

	archived, err := r.listArchived()
	if err != nil {
		return report, err
	}

	cutoff := time.Now().Add(-time.Duration(r.cfg.Retention.Days) * 24 * time.Hour)
	remaining := make([]archivedDir, 0, len(archived))
	for _, dir := range archived {
		if !dir.modTime.Before(cutoff) {
			remaining = append(remaining, dir)
			continue
		}
		if size, ok := r.remove(dir, "age"); ok {
			report.AgePruned++
			report.Reclaimed += size
		}
	}
	r.metrics.RecordPruned(metrics.ReasonAge, report.AgePruned)

	if r.cfg.Retention.MinFreeGiB > 0 {
		if err := r.pruneForSpace(ctx, remaining, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// pruneForSpace removes the oldest archived directories until free space on
// the artifact volume clears the configured floor.
func (r *Retainer) pruneForSpace(ctx context.Context, remaining []archivedDir, report *Report) error {
	floor := uint64(r.cfg.Retention.MinFreeGiB) * humanize.GiByte
	free, err := r.freeSpace(r.cfg.Sync.ArtifactRoot)
	if err != nil {
		return fmt.Errorf("stat artifact filesystem: %w", err)
	}

	for free < floor {
		if len(remaining) == 0 {
			report.Shortfall = true
			logging.WarnWithContext(r.logger, "archive exhausted below free-space floor", "retention_shortfall",
				logging.String("free", humanize.IBytes(free)),
				logging.String("floor", humanize.IBytes(floor)),
				logging.String(logging.FieldImpact, "the render volume can fill up and stall renders"),
				logging.String(logging.FieldErrorHint, "lower retention.days, free space by hand, or grow the volume"),
				logging.Alert("operator"),
			)
			if err := r.notifier.NotifyRetentionShortfall(ctx, free, floor); err != nil {
				logging.WarnWithContext(r.logger, "shortfall notification failed", "notification_failed", logging.Error(err))
			}
			break
		}

		oldest := remaining[0]
		remaining = remaining[1:]
		if size, ok := r.remove(oldest, "space"); ok {
			report.SpacePruned++
			report.Reclaimed += size
		}
		if free, err = r.freeSpace(r.cfg.Sync.ArtifactRoot); err != nil {
			return fmt.Errorf("stat artifact filesystem: %w", err)
		}
	}

	report.FreeBytes = free
	r.metrics.RecordPruned(metrics.ReasonSpace, report.SpacePruned)
	return nil
}

type archivedDir struct {
	path    string
	name    string
	modTime time.Time
}

// listArchived returns the direct child directories of the archive root,
// oldest first. A missing archive root means nothing to prune.
func (r *Retainer) listArchived() ([]archivedDir, error) {
	entries, err := os.ReadDir(r.cfg.ArchiveRoot())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive root: %w", err)
	}

	dirs := make([]archivedDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, archivedDir{
			path:    filepath.Join(r.cfg.ArchiveRoot(), entry.Name()),
			name:    entry.Name(),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.Before(dirs[j].modTime) })
	return dirs, nil
}

func (r *Retainer) remove(dir archivedDir, reason string) (int64, bool) {
	size, err := fileutil.DirSize(dir.path)
	if err != nil {
		size = 0
	}
	if err := os.RemoveAll(dir.path); err != nil {
		logging.ErrorWithContext(r.logger, "failed to prune archived artifact", "prune_failed",
			logging.String("archive_name", dir.name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive root permissions"),
		)
		return 0, false
	}
	r.logger.Info("archived artifact pruned",
		logging.String(logging.FieldEventType, "artifact_pruned"),
		logging.String("archive_name", dir.name),
		logging.String("reason", reason),
		logging.String("size", humanize.IBytes(uint64(size))),
	)
	return size, true
}

func statfsFree(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
