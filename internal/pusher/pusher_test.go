package pusher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/history"
	"ferry/internal/logging"
	"ferry/internal/pusher"
	"ferry/internal/secrets"
	"ferry/internal/transfer"
)

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mkdirErr error
	syncErr  error
	touchErr error
	stats    transfer.Stats

	mkdirs  []string
	syncs   []string
	touches []string
}

func (f *fakeRemote) Mkdir(_ context.Context, remoteDir string) error {
	f.mkdirs = append(f.mkdirs, remoteDir)
	return f.mkdirErr
}

func (f *fakeRemote) Sync(_ context.Context, localDir, remoteDir string) (transfer.Stats, error) {
	f.syncs = append(f.syncs, localDir+" -> "+remoteDir)
	return f.stats, f.syncErr
}

func (f *fakeRemote) Touch(_ context.Context, remotePath string) error {
	f.touches = append(f.touches, remotePath)
	return f.touchErr
}

type fakeNotifier struct {
	pushed   []string
	failed   []string
	attempts []int
}

func (f *fakeNotifier) NotifyDaemonStarted(context.Context, string) error { return nil }
func (f *fakeNotifier) NotifyDaemonStopped(context.Context, string) error { return nil }

func (f *fakeNotifier) NotifyArtifactPushed(_ context.Context, name string, _ int64, _ time.Duration) error {
	f.pushed = append(f.pushed, name)
	return nil
}

func (f *fakeNotifier) NotifyArtifactFailed(_ context.Context, name string, attempts int, _ error) error {
	f.failed = append(f.failed, name)
	f.attempts = append(f.attempts, attempts)
	return nil
}

func (f *fakeNotifier) NotifyRetentionShortfall(context.Context, uint64, uint64) error { return nil }

type pushEnv struct {
	pusher   *pusher.Pusher
	cfg      *config.Config
	store    *history.Store
	notifier *fakeNotifier
	remote   *fakeRemote
}

func newPushEnv(t *testing.T, mutate func(*config.Config)) *pushEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Sync.WorkerID = "gpu-07"
	cfg.Sync.ArtifactRoot = filepath.Join(dir, "artifacts")
	cfg.Logging.LogDir = filepath.Join(dir, "state")
	cfg.Remote.Host = "ingest.example.net"
	cfg.Remote.User = "ingest"
	cfg.Remote.IngestRoot = "/srv/ingest"
	cfg.Remote.Identity = filepath.Join(dir, "identity")
	cfg.Remote.KnownHosts = filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(cfg.Remote.Identity, []byte("key material"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Remote.KnownHosts, []byte("ingest ssh-ed25519 AAAA\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := history.Open(&cfg)
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	remote := &fakeRemote{stats: transfer.Stats{Bytes: 4096}}
	notifier := &fakeNotifier{}
	p, err := pusher.New(&cfg, store, notifier, nil, logging.NewNop(),
		pusher.WithDialer(func(identity, knownHosts string) (pusher.Remote, error) {
			if identity == "" || knownHosts == "" {
				t.Fatalf("dialer called without staged secrets: %q %q", identity, knownHosts)
			}
			return remote, nil
		}),
		pusher.WithClock(func() time.Time { return testClock }),
	)
	if err != nil {
		t.Fatalf("new pusher: %v", err)
	}
	return &pushEnv{pusher: p, cfg: &cfg, store: store, notifier: notifier, remote: remote}
}

func (e *pushEnv) readyArtifact(t *testing.T, name string) artifact.Dir {
	t.Helper()
	d := artifact.At(e.cfg.Sync.ArtifactRoot, name)
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, "frame_0001.exr"), []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, sentinel := range []string{artifact.SentinelDone, artifact.SentinelReady} {
		if err := os.WriteFile(d.SentinelPath(sentinel), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func TestPushReplicatesAndArchives(t *testing.T) {
	env := newPushEnv(t, nil)
	dir := env.readyArtifact(t, "render_042")

	result, err := env.pusher.Push(context.Background(), dir)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.Reason)
	}
	if result.Attempt != 1 || result.Bytes != 4096 {
		t.Fatalf("unexpected result: %+v", result)
	}

	wantRemote := "/srv/ingest/gpu-07/render_042"
	if len(env.remote.mkdirs) != 1 || env.remote.mkdirs[0] != wantRemote {
		t.Fatalf("mkdir calls = %v", env.remote.mkdirs)
	}
	if len(env.remote.syncs) != 1 || env.remote.syncs[0] != dir.Path+" -> "+wantRemote {
		t.Fatalf("sync calls = %v", env.remote.syncs)
	}
	if len(env.remote.touches) != 1 || env.remote.touches[0] != wantRemote+"/.READY" {
		t.Fatalf("touch calls = %v", env.remote.touches)
	}

	if _, err := os.Stat(dir.Path); !os.IsNotExist(err) {
		t.Fatalf("artifact dir should be archived away, stat err = %v", err)
	}
	archived := filepath.Join(env.cfg.ArchiveRoot(), "render_042.20240301T120000Z")
	if _, err := os.Stat(filepath.Join(archived, "frame_0001.exr")); err != nil {
		t.Fatalf("archived payload missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(archived, artifact.SentinelPushed)); err != nil {
		t.Fatalf("archived dir should keep .PUSHED: %v", err)
	}
	if _, err := os.Stat(filepath.Join(archived, artifact.SentinelPushing)); !os.IsNotExist(err) {
		t.Fatalf(".PUSHING must not travel into the archive, stat err = %v", err)
	}

	record, err := env.store.Get(context.Background(), "render_042")
	if err != nil || record == nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if record.Status != history.StatusPushed || record.Attempts != 1 || record.Bytes != 4096 {
		t.Fatalf("unexpected ledger record: %+v", record)
	}
	if len(env.notifier.pushed) != 1 || env.notifier.pushed[0] != "render_042" {
		t.Fatalf("pushed notifications = %v", env.notifier.pushed)
	}
}

func TestPushCleanupNoneLeavesDirectory(t *testing.T) {
	env := newPushEnv(t, func(cfg *config.Config) { cfg.Push.Cleanup = config.CleanupNone })
	dir := env.readyArtifact(t, "render_043")

	if _, err := env.pusher.Push(context.Background(), dir); err != nil {
		t.Fatalf("push: %v", err)
	}
	if !dir.HasPushed() {
		t.Fatal("expected .PUSHED sentinel")
	}
	if dir.HasPushing() {
		t.Fatal("lock should be released")
	}
	if !dir.HasReady() {
		t.Fatal(".READY should remain with cleanup none")
	}
}

func TestPushCleanupDeleteRemovesDirectory(t *testing.T) {
	env := newPushEnv(t, func(cfg *config.Config) { cfg.Push.Cleanup = config.CleanupDelete })
	dir := env.readyArtifact(t, "render_044")

	if _, err := env.pusher.Push(context.Background(), dir); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := os.Stat(dir.Path); !os.IsNotExist(err) {
		t.Fatalf("artifact dir should be deleted, stat err = %v", err)
	}
}

func TestPushGuardSkips(t *testing.T) {
	env := newPushEnv(t, nil)

	cases := []struct {
		name     string
		prepare  func(t *testing.T, d artifact.Dir)
		wantSkip string
	}{
		{
			name: "no_ready",
			prepare: func(t *testing.T, d artifact.Dir) {
				if err := os.Remove(d.SentinelPath(artifact.SentinelReady)); err != nil {
					t.Fatal(err)
				}
			},
			wantSkip: pusher.SkipNotReady,
		},
		{
			name: "already_pushed",
			prepare: func(t *testing.T, d artifact.Dir) {
				if err := d.MarkPushed(testClock); err != nil {
					t.Fatal(err)
				}
			},
			wantSkip: pusher.SkipAlreadyPushed,
		},
		{
			name: "terminal_failure",
			prepare: func(t *testing.T, d artifact.Dir) {
				if err := d.MarkFailed(testClock, "rsync exit 12"); err != nil {
					t.Fatal(err)
				}
			},
			wantSkip: pusher.SkipFailed,
		},
		{
			name: "fresh_lock",
			prepare: func(t *testing.T, d artifact.Dir) {
				if err := d.AcquireLock(testClock.Add(-time.Minute)); err != nil {
					t.Fatal(err)
				}
			},
			wantSkip: pusher.SkipLocked,
		},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := env.readyArtifact(t, "render_guard_"+string(rune('a'+i)))
			tc.prepare(t, dir)
			before := len(env.remote.mkdirs)

			result, err := env.pusher.Push(context.Background(), dir)
			if err != nil {
				t.Fatalf("push: %v", err)
			}
			if !result.Skipped || result.Reason != tc.wantSkip {
				t.Fatalf("result = %+v, want skip %q", result, tc.wantSkip)
			}
			if len(env.remote.mkdirs) != before {
				t.Fatal("guard skip must not touch the remote")
			}
		})
	}
}

func TestPushReclaimsStaleLock(t *testing.T) {
	env := newPushEnv(t, nil)
	dir := env.readyArtifact(t, "render_045")
	if err := dir.AcquireLock(testClock.Add(-2 * time.Hour)); err != nil {
		t.Fatal(err)
	}

	result, err := env.pusher.Push(context.Background(), dir)
	if err != nil {
		t.Fatalf("push after stale lock: %v", err)
	}
	if result.Skipped {
		t.Fatalf("stale lock should be reclaimed, got skip %q", result.Reason)
	}
	if len(env.remote.syncs) != 1 {
		t.Fatalf("sync calls = %v", env.remote.syncs)
	}
}

func TestPushFailureKeepsArtifactReady(t *testing.T) {
	env := newPushEnv(t, nil)
	env.remote.syncErr = errors.New("rsync exit 12")
	dir := env.readyArtifact(t, "render_046")

	_, err := env.pusher.Push(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "rsync exit 12") {
		t.Fatalf("expected sync error, got %v", err)
	}

	if !dir.HasReady() || dir.HasPushed() || dir.HasFailed() {
		t.Fatalf("unexpected sentinel state: %s", dir.State())
	}
	if dir.HasPushing() {
		t.Fatal("lock must be released on failure")
	}

	record, err := env.store.Get(context.Background(), "render_046")
	if err != nil || record == nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if record.Status != history.StatusPending || record.Attempts != 1 {
		t.Fatalf("unexpected ledger record: %+v", record)
	}
	if !strings.Contains(record.LastError, "rsync exit 12") {
		t.Fatalf("last error = %q", record.LastError)
	}
	if len(env.notifier.failed) != 0 {
		t.Fatalf("no terminal alert expected, got %v", env.notifier.failed)
	}
}

func TestPushTerminalFailureWritesFailedSentinel(t *testing.T) {
	env := newPushEnv(t, func(cfg *config.Config) { cfg.Push.MaxAttempts = 1 })
	env.remote.syncErr = errors.New("rsync exit 12")
	dir := env.readyArtifact(t, "render_047")

	if _, err := env.pusher.Push(context.Background(), dir); err == nil {
		t.Fatal("expected push error")
	}

	if !dir.HasFailed() {
		t.Fatal("expected .FAILED sentinel")
	}
	reason, err := os.ReadFile(dir.SentinelPath(artifact.SentinelFailed))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(reason), "rsync exit 12") {
		t.Fatalf("failed sentinel content = %q", reason)
	}

	record, err := env.store.Get(context.Background(), "render_047")
	if err != nil || record == nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if record.Status != history.StatusFailed {
		t.Fatalf("ledger status = %s", record.Status)
	}
	if len(env.notifier.failed) != 1 || env.notifier.attempts[0] != 1 {
		t.Fatalf("terminal alert = %v attempts %v", env.notifier.failed, env.notifier.attempts)
	}

	// A later sweep must treat the artifact as terminal.
	result, err := env.pusher.Push(context.Background(), dir)
	if err != nil {
		t.Fatalf("push on failed artifact: %v", err)
	}
	if !result.Skipped || result.Reason != pusher.SkipFailed {
		t.Fatalf("result = %+v", result)
	}
}

func TestPushMkdirFailureKeepsDistinctError(t *testing.T) {
	env := newPushEnv(t, nil)
	env.remote.mkdirErr = transfer.ErrRemoteMkdir
	dir := env.readyArtifact(t, "render_048")

	_, err := env.pusher.Push(context.Background(), dir)
	if !errors.Is(err, transfer.ErrRemoteMkdir) {
		t.Fatalf("expected remote mkdir error, got %v", err)
	}
	if len(env.remote.syncs) != 0 {
		t.Fatal("mkdir failure must abort before transfer")
	}
}

func TestPushMissingIdentityFailsBeforeLedger(t *testing.T) {
	env := newPushEnv(t, nil)
	if err := os.Remove(env.cfg.Remote.Identity); err != nil {
		t.Fatal(err)
	}
	dir := env.readyArtifact(t, "render_049")

	_, err := env.pusher.Push(context.Background(), dir)
	if !errors.Is(err, secrets.ErrIdentityNotFound) {
		t.Fatalf("expected identity error, got %v", err)
	}
	if len(env.remote.mkdirs) != 0 {
		t.Fatal("no remote calls expected")
	}
	record, err := env.store.Get(context.Background(), "render_049")
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Fatalf("no ledger attempt expected, got %+v", record)
	}
	if dir.HasPushing() {
		t.Fatal("no lock should be left behind")
	}
}

func TestPushMissingArtifactDirectory(t *testing.T) {
	env := newPushEnv(t, nil)
	dir := artifact.At(env.cfg.Sync.ArtifactRoot, "never_rendered")

	_, err := env.pusher.Push(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "never_rendered") {
		t.Fatalf("expected missing directory error, got %v", err)
	}
}
