// Package daemonrun boots the ferry daemon process: logging, preflight, the
// history ledger, the supervised daemon, and the IPC control socket. It blocks
// until a shutdown signal arrives or a stop request comes in over the socket.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"ferry/internal/config"
	"ferry/internal/daemon"
	"ferry/internal/deps"
	"ferry/internal/history"
	"ferry/internal/ipc"
	"ferry/internal/logging"
	"ferry/internal/logs"
	"ferry/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
	// SocketPath overrides the derived control socket path when non-empty.
	SocketPath string
}

// Run starts the ferry daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.Logging.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := logs.RunPath(cfg.Logging.LogDir, runID)

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("session_id", uuid.NewString()))

	if err := logs.PointCurrent(cfg.Logging.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update ferry.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Logging.LogDir, Pattern: logs.RunPattern, Exclude: []string{logPath}},
	)

	logStartupSnapshot(logger, cfg)

	if err := runPreflight(signalCtx, cfg, logger); err != nil {
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// Acquire the instance lock before touching the socket so a second
	// invocation exits without clobbering the running daemon's socket.
	if err := d.Start(signalCtx); err != nil {
		return err
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
		logger.Info("ferry daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_shutdown"),
			logging.String("reason", "signal"),
		)
	case <-d.Done():
		logger.Info("ferry daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_shutdown"),
			logging.String("reason", "stop_request"),
		)
	}
	return nil
}

// runPreflight aborts startup only when a blocking check fails. Advisory
// failures (missing tools or secret material) leave the daemon running
// degraded: pushes fail fast with their own errors until the operator fixes
// the underlying problem.
func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		if result.Passed {
			continue
		}
		msg := "preflight check failed"
		if result.Advisory {
			msg = "preflight check failed, continuing degraded"
		}
		logger.Warn(msg,
			logging.String(logging.FieldEventType, "preflight_check_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Bool("advisory", result.Advisory),
			logging.String(logging.FieldErrorHint, "run `ferry preflight` for the full report"),
		)
	}
	if blocking := preflight.BlockingFailures(results); len(blocking) > 0 {
		names := make([]string, 0, len(blocking))
		for _, result := range blocking {
			names = append(names, result.Name)
		}
		return fmt.Errorf("preflight checks failed: %s", strings.Join(names, ", "))
	}
	return nil
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.Required(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String(logging.FieldWorker, cfg.Sync.WorkerID),
		logging.String("artifact_root", cfg.Sync.ArtifactRoot),
		logging.String("watch_mode", cfg.Watch.Mode),
		logging.String("cleanup_mode", cfg.Push.Cleanup),
		logging.String("remote_host", cfg.Remote.Host),
		logging.String("remote_root", cfg.Remote.IngestRoot),
		logging.Int("retention_days", cfg.Retention.Days),
	}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Name+"_available", status.Available))
	}
	logger.Info("startup snapshot", logging.Args(attrs...)...)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
