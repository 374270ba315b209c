package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ferry/internal/config"
	"ferry/internal/daemon"
	"ferry/internal/history"
	"ferry/internal/ipc"
	"ferry/internal/logging"
	"ferry/internal/pusher"
	"ferry/internal/testsupport"
	"ferry/internal/transfer"
)

// fakeRemote satisfies pusher.Remote so daemon-side pushes in tests never
// reach for ssh.
type fakeRemote struct {
	mu    sync.Mutex
	syncs []string
}

func (f *fakeRemote) Mkdir(context.Context, string) error { return nil }

func (f *fakeRemote) Sync(_ context.Context, localDir, remoteDir string) (transfer.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, remoteDir)
	return transfer.Stats{Bytes: 4096}, nil
}

func (f *fakeRemote) Touch(context.Context, string) error { return nil }

func (f *fakeRemote) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.syncs)
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *history.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	remote     *fakeRemote
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	opts = append([]testsupport.ConfigOption{testsupport.WithTransferBinaries("true", "true")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	remote := &fakeRemote{}
	d, err := daemon.New(cfg, store, logging.NewNop(),
		daemon.WithPusherOptions(pusher.WithDialer(func(identity, knownHosts string) (pusher.Remote, error) {
			return remote, nil
		})))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Logging.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		remote:     remote,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[sync]
worker_id = %q
artifact_root = %q

[remote]
host = %q
user = %q
ingest_root = %q
identity = %q
known_hosts = %q

[watch]
mode = %q
sweep_interval = %d

[push]
cleanup = %q
rsync_binary = %q
ssh_binary = %q

[logging]
log_dir = %q

[api]
http_bind = %q
`,
		cfg.Sync.WorkerID, cfg.Sync.ArtifactRoot,
		cfg.Remote.Host, cfg.Remote.User, cfg.Remote.IngestRoot, cfg.Remote.Identity, cfg.Remote.KnownHosts,
		cfg.Watch.Mode, cfg.Watch.SweepInterval,
		cfg.Push.Cleanup, cfg.Push.RsyncBinary, cfg.Push.SSHBinary,
		cfg.Logging.LogDir,
		cfg.API.HTTPBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
