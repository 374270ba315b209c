package pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/history"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/notifications"
	"ferry/internal/secrets"
	"ferry/internal/services"
	"ferry/internal/transfer"
)

// Remote is the slice of the transfer client a push drives. *transfer.Client
// satisfies it; tests inject fakes through WithDialer.
type Remote interface {
	Mkdir(ctx context.Context, remoteDir string) error
	Sync(ctx context.Context, localDir, remoteDir string) (transfer.Stats, error)
	Touch(ctx context.Context, remotePath string) error
}

// Dialer builds the remote client once the ssh identity has been staged.
type Dialer func(identity, knownHosts string) (Remote, error)

// Result reports what a Push call did. Skipped results are successful no-ops.
type Result struct {
	Name     string
	Skipped  bool
	Reason   string
	Attempt  int
	Bytes    int64
	Duration time.Duration
}

// Skip reasons carried on no-op results.
const (
	SkipNotReady      = "no ready marker"
	SkipAlreadyPushed = "already pushed"
	SkipFailed        = "terminally failed; clear the .FAILED sentinel to retry"
	SkipLocked        = "push already in flight"
)

// Pusher replicates one artifact directory per Push call.
type Pusher struct {
	cfg      *config.Config
	store    *history.Store
	notifier notifications.Service
	metrics  *metrics.Collector
	logger   *slog.Logger
	dial     Dialer
	now      func() time.Time
}

// Option customizes a Pusher.
type Option func(*Pusher)

// WithDialer replaces the transfer client constructor.
func WithDialer(dial Dialer) Option {
	return func(p *Pusher) {
		if dial != nil {
			p.dial = dial
		}
	}
}

// WithClock replaces the wall clock used for lock and sentinel timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pusher) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a Pusher over the shared ledger and notification service.
func New(cfg *config.Config, store *history.Store, notifier notifications.Service, collector *metrics.Collector, logger *slog.Logger, opts ...Option) (*Pusher, error) {
	if cfg == nil {
		return nil, errors.New("pusher: config is required")
	}
	if store == nil {
		return nil, errors.New("pusher: history store is required")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pusher{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		metrics:  collector,
		logger:   logging.NewComponentLogger(logger, "pusher"),
		now:      time.Now,
	}
	p.dial = p.dialTransfer
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pusher) dialTransfer(identity, knownHosts string) (Remote, error) {
	endpoint := transfer.Endpoint{
		Host:           p.cfg.Remote.Host,
		User:           p.cfg.Remote.User,
		Port:           p.cfg.Remote.Port,
		Identity:       identity,
		KnownHosts:     knownHosts,
		ConnectTimeout: p.cfg.Remote.ConnectTimeout,
	}
	return transfer.New(endpoint, p.cfg.Push.RsyncBinary, p.cfg.Push.SSHBinary)
}

// Push replicates dir to the ingest host. Guard conditions return a skipped
// Result with a nil error. Failed attempts leave the directory ready for
// retry until the attempt counter reaches push.max_attempts.
func (p *Pusher) Push(ctx context.Context, dir artifact.Dir) (Result, error) {
	result := Result{Name: dir.Name}
	logger := p.artifactLogger(dir)

	info, err := os.Stat(dir.Path)
	if err != nil || !info.IsDir() {
		return result, services.Wrap(services.ErrNotFound, "pusher", "push", fmt.Sprintf("artifact directory %s", dir.Path), err)
	}

	reason, err := p.guard(logger, dir)
	if err != nil {
		return result, err
	}
	if reason != "" {
		result.Skipped = true
		result.Reason = reason
		logger.Debug("push skipped", logging.String("reason", reason))
		return result, nil
	}

	identity, err := secrets.ResolveIdentity(p.cfg.Remote.Identity)
	if err != nil {
		return result, err
	}
	pins, err := secrets.ResolveKnownHosts(p.cfg.Remote.KnownHosts)
	if err != nil {
		return result, err
	}
	staged, removeKey, err := secrets.Stage(identity)
	if err != nil {
		return result, fmt.Errorf("stage ssh identity: %w", err)
	}
	defer removeKey()

	if err := dir.AcquireLock(p.now()); err != nil {
		if errors.Is(err, services.ErrLocked) {
			result.Skipped = true
			result.Reason = SkipLocked
			return result, nil
		}
		return result, err
	}
	defer func() {
		if err := dir.ReleaseLock(); err != nil {
			logging.WarnWithContext(logger, "failed to release push lock", "lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the .PUSHING sentinel by hand"),
			)
		}
	}()

	attempt, err := p.store.BeginAttempt(ctx, dir.Name, p.cfg.Sync.WorkerID)
	if err != nil {
		return result, fmt.Errorf("record push attempt: %w", err)
	}
	result.Attempt = attempt
	p.metrics.RecordAttempt()

	start := p.now()
	logger.Info("push started",
		logging.String(logging.FieldEventType, "push_start"),
		logging.Int("attempt", attempt),
		logging.Int("max_attempts", p.cfg.Push.MaxAttempts),
	)

	stats, err := p.transferArtifact(ctx, dir, staged, pins)
	result.Duration = p.now().Sub(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("push interrupted by shutdown")
			return result, err
		}
		p.recordFailure(ctx, logger, dir, attempt, result.Duration, err)
		return result, err
	}
	result.Bytes = stats.Bytes

	p.finishPush(ctx, logger, dir, result)

	// Drop the lock before cleanup so an archived copy does not carry a
	// stale .PUSHING sentinel with it. The deferred release then no-ops.
	if err := dir.ReleaseLock(); err != nil {
		logging.WarnWithContext(logger, "failed to release push lock", "lock_release_failed", logging.Error(err))
	}
	if err := p.cleanup(logger, dir); err != nil {
		return result, err
	}

	logger.Info("push completed",
		logging.String(logging.FieldEventType, "push_complete"),
		logging.Int("attempt", attempt),
		logging.Int64("bytes", result.Bytes),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

// transferArtifact runs the remote half of a push: mkdir, rsync, remote
// ready handoff, then the local pushed marker.
func (p *Pusher) transferArtifact(ctx context.Context, dir artifact.Dir, identity, knownHosts string) (transfer.Stats, error) {
	client, err := p.dial(identity, knownHosts)
	if err != nil {
		return transfer.Stats{}, fmt.Errorf("build transfer client: %w", err)
	}

	remoteDir := artifact.RemotePath(p.cfg.Remote.IngestRoot, p.cfg.Sync.WorkerID, dir.Name)
	if err := client.Mkdir(ctx, remoteDir); err != nil {
		return transfer.Stats{}, err
	}
	stats, err := client.Sync(ctx, dir.Path, remoteDir)
	if err != nil {
		return stats, err
	}
	if err := client.Touch(ctx, path.Join(remoteDir, artifact.SentinelReady)); err != nil {
		return stats, fmt.Errorf("write remote ready marker: %w", err)
	}
	if err := dir.MarkPushed(p.now()); err != nil {
		return stats, fmt.Errorf("write local pushed marker: %w", err)
	}
	return stats, nil
}

// finishPush records the success in the ledger, notifies, and observes
// metrics. None of these can fail the push; the artifact is already marked
// pushed on disk.
func (p *Pusher) finishPush(ctx context.Context, logger *slog.Logger, dir artifact.Dir, result Result) {
	if err := p.store.MarkPushed(ctx, dir.Name, result.Bytes, result.Duration); err != nil {
		logging.ErrorWithContext(logger, "failed to record push in ledger", "ledger_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database in the state directory"),
		)
	}
	if err := p.notifier.NotifyArtifactPushed(ctx, dir.Name, result.Bytes, result.Duration); err != nil {
		logging.WarnWithContext(logger, "push notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "push succeeded; only the notification was lost"),
		)
	}
	p.metrics.RecordPush(metrics.ResultPushed, result.Duration, result.Bytes)
}

func (p *Pusher) artifactLogger(dir artifact.Dir) *slog.Logger {
	return p.logger.With(
		logging.String(logging.FieldArtifact, dir.Name),
		logging.String(logging.FieldWorker, p.cfg.Sync.WorkerID),
	)
}
