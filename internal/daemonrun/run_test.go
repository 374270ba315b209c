package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"ferry/internal/daemonrun"
	"ferry/internal/ipc"
	"ferry/internal/logs"
	"ferry/internal/testsupport"
)

func TestRunStopsViaControlSocket(t *testing.T) {
	// Stand-ins for rsync/ssh let the preflight tool checks pass without
	// real transfers.
	cfg := testsupport.NewConfig(t, testsupport.WithTransferBinaries("true", "false"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runErr := make(chan error, 1)
	go func() {
		runErr <- daemonrun.Run(ctx, cfg, daemonrun.Options{})
	}()

	socket := cfg.SocketPath()
	var client *ipc.Client
	deadline := time.Now().Add(10 * time.Second)
	for client == nil {
		select {
		case err := <-runErr:
			if err != nil && strings.Contains(err.Error(), "operation not permitted") {
				t.Skipf("unix sockets unavailable: %v", err)
			}
			t.Fatalf("run exited early: %v", err)
		default:
		}
		c, err := ipc.Dial(socket)
		if err == nil {
			client = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon socket never came up: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !ping.Pong || ping.PID != os.Getpid() {
		t.Fatalf("unexpected ping: %+v", ping)
	}

	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}
	if _, err := os.Stat(logs.CurrentPath(cfg.Logging.LogDir)); err != nil {
		t.Fatalf("current log pointer: %v", err)
	}

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !resp.Stopped {
		t.Fatal("stop not acknowledged")
	}
	_ = client.Close()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not exit after stop request")
	}

	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file still present: %v", err)
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("socket still present: %v", err)
	}
}

func TestRunAbortsWhenPreflightFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTransferBinaries("true", "false"))
	// An artifact root that is a plain file fails the blocking directory check.
	root := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Sync.ArtifactRoot = root

	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{})
	if err == nil || !strings.Contains(err.Error(), "preflight checks failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	if _, statErr := os.Stat(cfg.PIDPath()); !os.IsNotExist(statErr) {
		t.Fatal("pid file should not be written when preflight fails")
	}
}

func TestRunStartsDegradedWithoutIdentity(t *testing.T) {
	// Missing secret material is advisory: the daemon still comes up, pushes
	// just fail fast until a key appears.
	cfg := testsupport.NewConfig(t, testsupport.WithTransferBinaries("true", "false"))
	cfg.Remote.Identity = filepath.Join(t.TempDir(), "missing_key")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runErr := make(chan error, 1)
	go func() {
		runErr <- daemonrun.Run(ctx, cfg, daemonrun.Options{})
	}()

	socket := cfg.SocketPath()
	var client *ipc.Client
	deadline := time.Now().Add(10 * time.Second)
	for client == nil {
		select {
		case err := <-runErr:
			if err != nil && strings.Contains(err.Error(), "operation not permitted") {
				t.Skipf("unix sockets unavailable: %v", err)
			}
			t.Fatalf("run exited instead of degrading: %v", err)
		default:
		}
		c, err := ipc.Dial(socket)
		if err == nil {
			client = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon socket never came up: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !ping.Pong {
		t.Fatalf("unexpected ping: %+v", ping)
	}

	if resp, err := client.Stop(); err != nil || !resp.Stopped {
		t.Fatalf("stop: %+v %v", resp, err)
	}
	_ = client.Close()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not exit after stop request")
	}
}
