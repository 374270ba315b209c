package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ferry/internal/api"
)

// syncBuffer is a thread-safe bytes.Buffer for commands that write from a
// goroutine while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func TestStartReportsAlreadyRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.daemon.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	waitFor(t, 5*time.Second, env.daemon.Ready)

	stdout, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, stdout, "Daemon already running")
}

func TestStopWhenNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	deadSocket := filepath.Join(t.TempDir(), "dead.sock")
	stdout, _, err := runCLI(t, []string{"stop"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, stdout, "Daemon is not running")
}

func TestStatusOfflineFallsBackToConfig(t *testing.T) {
	env := setupCLITestEnv(t)

	deadSocket := filepath.Join(t.TempDir(), "dead.sock")
	stdout, _, err := runCLI(t, []string{"status"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "Not running")
	requireContains(t, stdout, "gpu-07")
}

func TestStatusRunningDaemonListsTasks(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.daemon.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	waitFor(t, 5*time.Second, env.daemon.Ready)

	stdout, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "Running (pid")
	requireContains(t, stdout, "== Tasks ==")
	requireContains(t, stdout, "watcher")
	requireContains(t, stdout, "retainer")
}

func TestStatusJSONWhileRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.daemon.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	waitFor(t, 5*time.Second, env.daemon.Ready)

	stdout, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}

	var payload api.DaemonStatus
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !payload.Running {
		t.Fatal("expected running daemon in payload")
	}
	if len(payload.Tasks) == 0 {
		t.Fatal("expected supervised tasks in payload")
	}
}
