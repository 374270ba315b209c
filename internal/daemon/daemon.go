package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"ferry/internal/api"
	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/history"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/notifications"
	"ferry/internal/pusher"
	"ferry/internal/retainer"
	"ferry/internal/services"
	"ferry/internal/supervisor"
	"ferry/internal/watcher"
)

// Daemon owns the supervised runtime and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	notifier notifications.Service
	registry *prometheus.Registry

	pusher   *pusher.Pusher
	watcher  *watcher.Watcher
	retainer *retainer.Retainer
	super    *supervisor.Supervisor

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running   bool
	PID       int
	WorkerID  string
	StartedAt time.Time
	WatchMode string
	Degraded  bool
	LastSweep time.Time
	Tasks     []supervisor.Health
	Ledger    history.Summary
	HistoryDB string
	LockFile  string
	Socket    string
}

type options struct {
	notifier       notifications.Service
	registry       *prometheus.Registry
	pusherOpts     []pusher.Option
	supervisorOpts []supervisor.Option
}

// Option customizes daemon construction.
type Option func(*options)

// WithNotifier overrides the ntfy publisher.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithRegistry supplies the Prometheus registry backing /metrics.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithPusherOptions forwards options to the embedded pusher.
func WithPusherOptions(opts ...pusher.Option) Option {
	return func(o *options) { o.pusherOpts = append(o.pusherOpts, opts...) }
}

// WithSupervisorOptions forwards options to the task supervisor.
func WithSupervisorOptions(opts ...supervisor.Option) Option {
	return func(o *options) { o.supervisorOpts = append(o.supervisorOpts, opts...) }
}

// New constructs a daemon with initialized components. The watcher and
// retainer tasks are registered immediately; the HTTP listener task joins
// them when api.http_bind is configured.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	var settings options
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	notifier := settings.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	registry := settings.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	collector := metrics.NewCollector(registry)

	push, err := pusher.New(cfg, store, notifier, collector, logger, settings.pusherOpts...)
	if err != nil {
		return nil, fmt.Errorf("build pusher: %w", err)
	}
	watch, err := watcher.New(cfg, push, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("build watcher: %w", err)
	}
	retain, err := retainer.New(cfg, notifier, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("build retainer: %w", err)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		notifier: notifier,
		registry: registry,
		pusher:   push,
		watcher:  watch,
		retainer: retain,
		super:    supervisor.New(collector, logger, settings.supervisorOpts...),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		done:     make(chan struct{}),
	}

	if err := d.super.Register(supervisor.NewTask("watcher", watch.Run)); err != nil {
		return nil, err
	}
	if err := d.super.Register(supervisor.NewTask("retainer", retain.Run)); err != nil {
		return nil, err
	}
	if bind := strings.TrimSpace(cfg.API.HTTPBind); bind != "" {
		srv := newHTTPServer(bind, d, logger)
		if err := d.super.Register(supervisor.NewTask("api-http", srv.run)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Start acquires the daemon lock and launches the supervised tasks.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ferry daemon instance is already running")
	}

	if err := d.super.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start supervisor: %w", err)
	}

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("ferry daemon started",
		logging.String(logging.FieldWorker, d.cfg.Sync.WorkerID),
		logging.String("lock", d.lockPath))
	if err := d.notifier.NotifyDaemonStarted(ctx, d.cfg.Sync.WorkerID); err != nil {
		d.logger.Warn("startup notification failed", logging.Error(err))
	}
	return nil
}

// Stop halts the supervised tasks and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.super.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("ferry daemon stopped")
	if err := d.notifier.NotifyDaemonStopped(context.Background(), d.cfg.Sync.WorkerID); err != nil {
		d.logger.Warn("shutdown notification failed", logging.Error(err))
	}
	d.stopOnce.Do(func() { close(d.done) })
}

// Done is closed after the first Stop, letting the runtime exit when a
// shutdown arrives over the socket instead of a signal.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the supervised tasks are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// WorkerID returns the configured worker identity.
func (d *Daemon) WorkerID() string {
	return d.cfg.Sync.WorkerID
}

// Ready reports whether every supervised task is currently up.
func (d *Daemon) Ready() bool {
	return d.running.Load() && d.super.Ready()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		WorkerID:  d.cfg.Sync.WorkerID,
		StartedAt: d.startedAt,
		WatchMode: d.cfg.Watch.Mode,
		Degraded:  d.watcher.Degraded(),
		LastSweep: d.watcher.LastSweep(),
		Tasks:     d.super.Health(),
		HistoryDB: d.store.Path(),
		LockFile:  d.lockPath,
		Socket:    d.cfg.SocketPath(),
	}
	summary, err := d.store.Summary(ctx)
	if err != nil {
		d.logger.Warn("ledger summary unavailable", logging.Error(err))
	} else {
		status.Ledger = summary
	}
	return status
}

// Sweep scans the artifact root once and dispatches every ready artifact.
func (d *Daemon) Sweep(ctx context.Context) (int, error) {
	return d.watcher.Sweep(ctx, watcher.TriggerManual)
}

// PushArtifact dispatches a single artifact by directory name.
func (d *Daemon) PushArtifact(ctx context.Context, name string) (pusher.Result, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.ContainsAny(trimmed, `/\`) {
		return pusher.Result{}, services.Wrap(services.ErrValidation, "daemon", "push", fmt.Sprintf("invalid artifact name %q", name), nil)
	}
	return d.pusher.Push(ctx, artifact.At(d.cfg.Sync.ArtifactRoot, trimmed))
}

// Prune runs one retention cycle against the archive.
func (d *Daemon) Prune(ctx context.Context) (retainer.Report, error) {
	return d.retainer.Prune(ctx)
}

// History returns the most recently touched ledger rows.
func (d *Daemon) History(ctx context.Context, limit int) ([]*history.Record, error) {
	return d.store.Recent(ctx, limit)
}

// StatusPayload converts a status snapshot into its API representation.
func StatusPayload(status Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:   status.Running,
		PID:       status.PID,
		WorkerID:  status.WorkerID,
		StartedAt: api.FormatTime(status.StartedAt),
		Watch: api.WatchStatus{
			Mode:      status.WatchMode,
			Degraded:  status.Degraded,
			LastSweep: api.FormatTime(status.LastSweep),
		},
		Tasks:         api.FromTaskHealth(status.Tasks),
		Ledger:        api.FromSummary(status.Ledger),
		HistoryDBPath: status.HistoryDB,
		LockFilePath:  status.LockFile,
		SocketPath:    status.Socket,
	}
}
