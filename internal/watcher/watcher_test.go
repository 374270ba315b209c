package watcher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/pusher"
	"ferry/internal/watcher"
)

type fakePusher struct {
	mu    sync.Mutex
	names []string
}

func (f *fakePusher) Push(_ context.Context, dir artifact.Dir) (pusher.Result, error) {
	f.mu.Lock()
	f.names = append(f.names, dir.Name)
	f.mu.Unlock()
	if err := dir.MarkPushed(time.Now().UTC()); err != nil {
		return pusher.Result{Name: dir.Name}, err
	}
	return pusher.Result{Name: dir.Name, Attempt: 1, Bytes: 1}, nil
}

func (f *fakePusher) pushed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func newWatchEnv(t *testing.T, mutate func(*config.Config)) (*watcher.Watcher, *config.Config, *fakePusher) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Sync.WorkerID = "gpu-07"
	cfg.Sync.ArtifactRoot = filepath.Join(dir, "artifacts")
	cfg.Logging.LogDir = filepath.Join(dir, "state")
	cfg.Watch.Mode = config.WatchModePoll
	cfg.Watch.SweepInterval = 1
	if err := os.MkdirAll(cfg.Sync.ArtifactRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		mutate(&cfg)
	}

	push := &fakePusher{}
	w, err := watcher.New(&cfg, push, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	return w, &cfg, push
}

func makeArtifact(t *testing.T, root, name string, sentinels ...string) artifact.Dir {
	t.Helper()
	d := artifact.At(root, name)
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, "payload.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, sentinel := range sentinels {
		if err := os.WriteFile(d.SentinelPath(sentinel), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSweepPromotesQueuesAndSkips(t *testing.T) {
	w, cfg, _ := newWatchEnv(t, nil)
	root := cfg.Sync.ArtifactRoot

	doneDir := makeArtifact(t, root, "done_dir", artifact.SentinelDone)
	makeArtifact(t, root, "ready_dir", artifact.SentinelReady)
	makeArtifact(t, root, "empty_dir")
	makeArtifact(t, root, "pushed_dir", artifact.SentinelReady, artifact.SentinelPushed)
	makeArtifact(t, root, "failed_dir", artifact.SentinelReady, artifact.SentinelFailed)

	freshLock := makeArtifact(t, root, "fresh_lock", artifact.SentinelReady)
	if err := freshLock.AcquireLock(time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	staleLock := makeArtifact(t, root, "stale_lock", artifact.SentinelReady)
	staleStamp := time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339) + "\n"
	if err := os.WriteFile(staleLock.SentinelPath(artifact.SentinelPushing), []byte(staleStamp), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(cfg.ArchiveRoot(), "old.20240101T000000Z"), 0o755); err != nil {
		t.Fatal(err)
	}

	queued, err := w.Sweep(context.Background(), watcher.TriggerManual)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if queued != 3 {
		t.Fatalf("queued = %d, want 3 (done_dir, ready_dir, stale_lock)", queued)
	}
	if !doneDir.HasReady() {
		t.Fatal("done_dir should be promoted to ready")
	}
	if w.LastSweep().IsZero() {
		t.Fatal("last sweep time should be recorded")
	}

	// Everything queued is still pending, so a second sweep adds nothing.
	queued, err = w.Sweep(context.Background(), watcher.TriggerManual)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if queued != 0 {
		t.Fatalf("second sweep queued = %d, want 0", queued)
	}
}

func TestSweepMissingRootFails(t *testing.T) {
	w, _, _ := newWatchEnv(t, func(cfg *config.Config) {
		cfg.Sync.ArtifactRoot = filepath.Join(cfg.Sync.ArtifactRoot, "missing")
	})

	if _, err := w.Sweep(context.Background(), watcher.TriggerManual); err == nil {
		t.Fatal("expected error for missing artifact root")
	}
}

func TestRunPollModePushesEachReadyOnce(t *testing.T) {
	w, cfg, push := newWatchEnv(t, nil)
	makeArtifact(t, cfg.Sync.ArtifactRoot, "render_a", artifact.SentinelDone)
	makeArtifact(t, cfg.Sync.ArtifactRoot, "render_b", artifact.SentinelReady)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, "both artifacts pushed", func() bool { return len(push.pushed()) >= 2 })
	if w.Degraded() {
		t.Fatal("poll mode is never degraded")
	}

	// Both are .PUSHED now, so no artifact queues again.
	queued, err := w.Sweep(ctx, watcher.TriggerManual)
	if err != nil {
		t.Fatalf("manual sweep: %v", err)
	}
	if queued != 0 {
		t.Fatalf("manual sweep queued = %d, want 0", queued)
	}
	time.Sleep(50 * time.Millisecond)

	got := push.pushed()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "render_a" || got[1] != "render_b" {
		t.Fatalf("pushed = %v", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
}

func TestRunEventModeReactsToSentinels(t *testing.T) {
	w, cfg, push := newWatchEnv(t, func(cfg *config.Config) {
		cfg.Watch.Mode = config.WatchModeEvent
	})
	makeArtifact(t, cfg.Sync.ArtifactRoot, "early", artifact.SentinelDone)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "startup sweep push", func() bool {
		return len(push.pushed()) >= 1
	})
	if w.Degraded() {
		t.Fatal("native watcher should be active")
	}

	fresh := artifact.At(cfg.Sync.ArtifactRoot, "fresh_042")
	if err := os.MkdirAll(fresh.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fresh.Path, "frame.exr"), []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(fresh.SentinelPath(artifact.SentinelDone), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "fresh artifact pushed", func() bool {
		for _, name := range push.pushed() {
			if name == "fresh_042" {
				return true
			}
		}
		return false
	})
	if !fresh.HasReady() {
		t.Fatal("fresh artifact should be promoted")
	}
}

func TestEventModeFailsWithoutRoot(t *testing.T) {
	w, _, _ := newWatchEnv(t, func(cfg *config.Config) {
		cfg.Watch.Mode = config.WatchModeEvent
		cfg.Sync.ArtifactRoot = filepath.Join(cfg.Sync.ArtifactRoot, "missing")
	})

	err := w.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "native watcher") {
		t.Fatalf("expected native watcher error, got %v", err)
	}
}

func TestAutoModeDegradesToPolling(t *testing.T) {
	missingRoot := ""
	w, _, push := newWatchEnv(t, func(cfg *config.Config) {
		cfg.Watch.Mode = config.WatchModeAuto
		cfg.Sync.ArtifactRoot = filepath.Join(cfg.Sync.ArtifactRoot, "late_mount")
		missingRoot = cfg.Sync.ArtifactRoot
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "degraded state", w.Degraded)

	// The mount appears later; the sweep picks up where native watching
	// could not start.
	makeArtifact(t, missingRoot, "late_artifact", artifact.SentinelReady)
	waitFor(t, "late artifact pushed", func() bool {
		return len(push.pushed()) == 1 && push.pushed()[0] == "late_artifact"
	})
}
