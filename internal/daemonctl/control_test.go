package daemonctl_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ferry/internal/config"
	"ferry/internal/daemon"
	"ferry/internal/daemonctl"
	"ferry/internal/ipc"
	"ferry/internal/logging"
	"ferry/internal/pusher"
	"ferry/internal/testsupport"
)

// runningDaemon starts an in-process daemon behind an IPC server and mimics
// the runtime by closing the server once the daemon reports done.
func runningDaemon(t *testing.T, cfg *config.Config) string {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop(),
		daemon.WithPusherOptions(pusher.WithDialer(func(identity, knownHosts string) (pusher.Remote, error) {
			return nil, errors.New("no remote in control tests")
		})))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC-backed test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-d.Done():
			srv.Close()
		case <-ctx.Done():
			srv.Close()
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-closed
	})

	time.Sleep(50 * time.Millisecond)
	return socket
}

func TestProcessInfoWithoutSocket(t *testing.T) {
	alive, pid, err := daemonctl.ProcessInfo(filepath.Join(t.TempDir(), "missing.sock"))
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if alive || pid != 0 {
		t.Fatalf("expected no daemon, got alive=%v pid=%d", alive, pid)
	}
}

func TestProcessInfoReportsPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := runningDaemon(t, cfg)

	alive, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !alive || pid != os.Getpid() {
		t.Fatalf("expected running daemon with pid %d, got alive=%v pid=%d", os.Getpid(), alive, pid)
	}
}

func TestStopAndTerminateGraceful(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := runningDaemon(t, cfg)

	result, err := daemonctl.StopAndTerminate(socket, cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.StopAcknowledged {
		t.Fatal("expected stop to be acknowledged")
	}
	if result.ForcedKill {
		t.Fatal("graceful stop should not force-kill")
	}
	if result.PID != os.Getpid() {
		t.Fatalf("PID = %d, want %d", result.PID, os.Getpid())
	}
}

func TestStopAndTerminateWhenNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndTerminate(cfg.SocketPath(), cfg, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestEnsureStartedDetectsRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := runningDaemon(t, cfg)

	result, err := daemonctl.EnsureStarted(socket, "/nonexistent/ferry", daemonctl.LaunchOptions{}, 2*time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.Launched {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.PID != os.Getpid() {
		t.Fatalf("PID = %d, want %d", result.PID, os.Getpid())
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "ferry.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestDeriveStateDir(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.LogDir = "/var/lib/ferry"

	if got := daemonctl.DeriveStateDir("/run/ferry/ferry.lock", "", nil); got != "/run/ferry" {
		t.Fatalf("lock-derived dir = %q", got)
	}
	if got := daemonctl.DeriveStateDir("", "/data/ferry/ferry.db", nil); got != "/data/ferry" {
		t.Fatalf("db-derived dir = %q", got)
	}
	if got := daemonctl.DeriveStateDir("", "", cfg); got != "/var/lib/ferry" {
		t.Fatalf("config-derived dir = %q", got)
	}
	if got := daemonctl.DeriveStateDir("", "", nil); got != "" {
		t.Fatalf("expected empty dir, got %q", got)
	}
}

func TestBuildStatusSnapshotOfflineFallback(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Running {
		t.Fatal("expected offline snapshot")
	}
	if snapshot.WorkerID != "gpu-07" || snapshot.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Watch.Mode != config.WatchModePoll {
		t.Fatalf("Watch.Mode = %q", snapshot.Watch.Mode)
	}
}
