// Package supervisor keeps the daemon's long-running tasks alive.
//
// Each registered task runs in its own goroutine. A task that returns while
// the daemon is still up is logged, counted, and restarted after a backoff
// that doubles from one second up to one minute. Stop cancels the shared
// context and waits for every task to exit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ferry/internal/logging"
	"ferry/internal/metrics"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = time.Minute
)

// Task is a long-running unit of daemon work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type taskFunc struct {
	name string
	run  func(ctx context.Context) error
}

func (t taskFunc) Name() string                  { return t.name }
func (t taskFunc) Run(ctx context.Context) error { return t.run(ctx) }

// NewTask wraps a run function as a named Task.
func NewTask(name string, run func(ctx context.Context) error) Task {
	return taskFunc{name: name, run: run}
}

// Health is a point-in-time readiness snapshot of one task.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

type taskState struct {
	ready    bool
	restarts int
	lastErr  error
}

// Supervisor runs registered tasks and restarts the ones that die.
type Supervisor struct {
	logger         *slog.Logger
	metrics        *metrics.Collector
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu      sync.Mutex
	tasks   []Task
	state   map[string]*taskState
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithBackoff overrides the restart backoff bounds, for tests.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Supervisor) {
		if initial > 0 {
			s.initialBackoff = initial
		}
		if max > 0 {
			s.maxBackoff = max
		}
	}
}

// New builds an empty Supervisor.
func New(collector *metrics.Collector, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		logger:         logging.NewComponentLogger(logger, "supervisor"),
		metrics:        collector,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		state:          make(map[string]*taskState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a task. Tasks must be registered before Start.
func (s *Supervisor) Register(task Task) error {
	if task == nil {
		return errors.New("supervisor: task is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("supervisor: already running")
	}
	for _, existing := range s.tasks {
		if existing.Name() == task.Name() {
			return fmt.Errorf("supervisor: task %q already registered", task.Name())
		}
	}
	s.tasks = append(s.tasks, task)
	s.state[task.Name()] = &taskState{}
	return nil
}

// Start launches every registered task.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor: already running")
	}
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return errors.New("supervisor: no tasks registered")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	tasks := append([]Task(nil), s.tasks...)
	s.wg.Add(len(tasks))
	s.mu.Unlock()

	for _, task := range tasks {
		go s.supervise(runCtx, task)
	}
	return nil
}

// Stop cancels all tasks and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Health reports every task in registration order.
func (s *Supervisor) Health() []Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Health, 0, len(s.tasks))
	for _, task := range s.tasks {
		state := s.state[task.Name()]
		health := Health{Name: task.Name()}
		if state != nil {
			health.Ready = state.ready
			switch {
			case !state.ready && state.lastErr != nil:
				health.Detail = state.lastErr.Error()
			case state.restarts > 0:
				health.Detail = fmt.Sprintf("restarts: %d", state.restarts)
			}
		}
		out = append(out, health)
	}
	return out
}

// Ready reports whether every task is currently running.
func (s *Supervisor) Ready() bool {
	for _, health := range s.Health() {
		if !health.Ready {
			return false
		}
	}
	return true
}

func (s *Supervisor) supervise(ctx context.Context, task Task) {
	defer s.wg.Done()
	name := task.Name()
	logger := s.logger.With(logging.String(logging.FieldTask, name))
	backoff := s.initialBackoff

	for {
		s.setReady(name, true)
		logger.Info("task started", logging.String(logging.FieldEventType, "task_start"))
		started := time.Now()
		err := task.Run(ctx)

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			s.setReady(name, false)
			logger.Info("task stopped", logging.String(logging.FieldEventType, "task_stop"))
			return
		}
		if err == nil {
			err = errors.New("task returned before shutdown")
		}
		s.recordExit(name, err)
		s.metrics.RecordTaskRestart(name)

		// A task that held steady long enough earns a fresh backoff.
		if time.Since(started) >= s.maxBackoff {
			backoff = s.initialBackoff
		}
		logging.ErrorWithContext(logger, "task exited; restarting", "task_restart",
			logging.Error(err),
			logging.Duration("backoff", backoff),
			logging.String(logging.FieldErrorHint, "check the task's own error lines above"),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Supervisor) setReady(name string, ready bool) {
	s.mu.Lock()
	if state := s.state[name]; state != nil {
		state.ready = ready
	}
	s.mu.Unlock()
}

func (s *Supervisor) recordExit(name string, err error) {
	s.mu.Lock()
	if state := s.state[name]; state != nil {
		state.ready = false
		state.restarts++
		state.lastErr = err
	}
	s.mu.Unlock()
}
