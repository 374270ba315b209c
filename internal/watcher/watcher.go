package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/pusher"
)

// Trigger records what produced an event.
type Trigger string

const (
	TriggerSweep  Trigger = "sweep"
	TriggerNative Trigger = "native"
	TriggerManual Trigger = "manual"
)

// Event is one ready artifact on the unified stream.
type Event struct {
	Dir     artifact.Dir
	Trigger Trigger
}

// Pusher consumes ready artifacts. *pusher.Pusher satisfies it.
type Pusher interface {
	Push(ctx context.Context, dir artifact.Dir) (pusher.Result, error)
}

const eventBuffer = 64

// Watcher owns readiness detection for the artifact root.
type Watcher struct {
	cfg     *config.Config
	push    Pusher
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	events    chan Event
	mu        sync.Mutex
	pending   map[string]struct{}
	degraded  atomic.Bool
	lastSweep atomic.Int64
}

// New builds a Watcher over the shared pusher.
func New(cfg *config.Config, push Pusher, collector *metrics.Collector, logger *slog.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, errors.New("watcher: config is required")
	}
	if push == nil {
		return nil, errors.New("watcher: pusher is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:     cfg,
		push:    push,
		metrics: collector,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		now:     time.Now,
		events:  make(chan Event, eventBuffer),
		pending: make(map[string]struct{}),
	}, nil
}

// Run starts readiness detection and dispatches events until ctx is done.
// It is the watch task the supervisor runs.
func (w *Watcher) Run(ctx context.Context) error {
	var native *fsnotify.Watcher
	if w.cfg.Watch.Mode != config.WatchModePoll {
		opened, err := w.startNative()
		if err != nil {
			if w.cfg.Watch.Mode == config.WatchModeEvent {
				return fmt.Errorf("start native watcher: %w", err)
			}
			logging.WarnWithContext(w.logger, "native watcher unavailable; sweeping only", "watcher_degraded",
				logging.Error(err),
				logging.String(logging.FieldImpact, "readiness detection falls back to the sweep interval"),
				logging.String(logging.FieldErrorHint, "check inotify limits and artifact root permissions"),
			)
		} else {
			native = opened
		}
	}
	w.setDegraded(w.cfg.Watch.Mode != config.WatchModePoll && native == nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if native != nil {
		defer native.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consumeNative(runCtx, native)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweepLoop(runCtx)
	}()

	w.logger.Info("watcher started",
		logging.String(logging.FieldEventType, "watcher_start"),
		logging.String("mode", w.cfg.Watch.Mode),
		logging.Bool("native", native != nil),
		logging.String("artifact_root", w.cfg.Sync.ArtifactRoot),
	)

	w.dispatch(runCtx)
	cancel()
	wg.Wait()
	return ctx.Err()
}

// Degraded reports whether native watching was requested but unavailable.
func (w *Watcher) Degraded() bool {
	return w.degraded.Load()
}

// LastSweep returns the completion time of the most recent sweep, or the
// zero time before the first one finishes.
func (w *Watcher) LastSweep() time.Time {
	unix := w.lastSweep.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func (w *Watcher) setDegraded(degraded bool) {
	w.degraded.Store(degraded)
	w.metrics.SetWatcherDegraded(degraded)
}

// dispatch consumes the unified stream and pushes one artifact at a time.
func (w *Watcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			w.handle(ctx, event)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event Event) {
	defer w.forget(event.Dir.Name)

	result, err := w.push.Push(ctx, event.Dir)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The pusher already logged and recorded the failure.
		w.logger.Debug("push attempt failed",
			logging.String(logging.FieldArtifact, event.Dir.Name),
			logging.String(logging.FieldTrigger, string(event.Trigger)),
			logging.Error(err),
		)
		return
	}
	if result.Skipped {
		w.logger.Debug("push skipped",
			logging.String(logging.FieldArtifact, event.Dir.Name),
			logging.String(logging.FieldTrigger, string(event.Trigger)),
			logging.String("reason", result.Reason),
		)
	}
}

// enqueue queues dir unless it is already waiting or in flight. Reports
// whether the event was accepted.
func (w *Watcher) enqueue(ctx context.Context, dir artifact.Dir, trigger Trigger) bool {
	w.mu.Lock()
	if _, exists := w.pending[dir.Name]; exists {
		w.mu.Unlock()
		return false
	}
	w.pending[dir.Name] = struct{}{}
	w.mu.Unlock()

	select {
	case w.events <- Event{Dir: dir, Trigger: trigger}:
		return true
	case <-ctx.Done():
		w.forget(dir.Name)
		return false
	}
}

func (w *Watcher) forget(name string) {
	w.mu.Lock()
	delete(w.pending, name)
	w.mu.Unlock()
}
