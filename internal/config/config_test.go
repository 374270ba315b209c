package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ferry/internal/config"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ferry.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func minimalConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeConfig(t, dir, `
[sync]
worker_id = "worker-01"
artifact_root = "`+filepath.Join(dir, "artifacts")+`"

[remote]
host = "ingest.example.net"
user = "ingest"
ingest_root = "/srv/ingest"

[logging]
log_dir = "`+filepath.Join(dir, "logs")+`"
`)
}

func TestLoadAppliesDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}

	if cfg.Sync.WorkerID != "worker-01" {
		t.Fatalf("worker id = %q", cfg.Sync.WorkerID)
	}
	if cfg.Remote.Port != 22 {
		t.Fatalf("expected default port, got %d", cfg.Remote.Port)
	}
	if cfg.Watch.Mode != config.WatchModeAuto {
		t.Fatalf("expected auto watch mode, got %q", cfg.Watch.Mode)
	}
	if cfg.Push.Cleanup != config.CleanupArchive {
		t.Fatalf("expected archive cleanup, got %q", cfg.Push.Cleanup)
	}
	if cfg.Push.MaxAttempts != 5 {
		t.Fatalf("expected default max attempts, got %d", cfg.Push.MaxAttempts)
	}
	if !filepath.IsAbs(cfg.Sync.ArtifactRoot) {
		t.Fatalf("artifact root not expanded: %q", cfg.Sync.ArtifactRoot)
	}
}

func TestLoadDerivesWorkerIDFromHostname(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[sync]
artifact_root = "`+filepath.Join(dir, "artifacts")+`"

[remote]
host = "ingest.example.net"
user = "ingest"
ingest_root = "/srv/ingest"

[logging]
log_dir = "`+filepath.Join(dir, "logs")+`"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		t.Skipf("hostname unavailable: %v", err)
	}
	if cfg.Sync.WorkerID != hostname {
		t.Fatalf("worker id = %q, want hostname %q", cfg.Sync.WorkerID, hostname)
	}
}

func TestLoadMissingRemoteHostFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[sync]
worker_id = "worker-01"
artifact_root = "`+filepath.Join(dir, "artifacts")+`"
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing remote.host")
	}
	if !strings.Contains(err.Error(), "remote.host") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	t.Setenv("FERRY_REMOTE_HOST", "other.example.net")
	t.Setenv("FERRY_REMOTE_PORT", "2222")
	t.Setenv("FERRY_WATCH_MODE", "poll")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.Host != "other.example.net" {
		t.Fatalf("host override not applied: %q", cfg.Remote.Host)
	}
	if cfg.Remote.Port != 2222 {
		t.Fatalf("port override not applied: %d", cfg.Remote.Port)
	}
	if cfg.Watch.Mode != config.WatchModePoll {
		t.Fatalf("mode override not applied: %q", cfg.Watch.Mode)
	}
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope.toml")

	t.Setenv("FERRY_WORKER_ID", "worker-09")
	t.Setenv("FERRY_ARTIFACT_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("FERRY_REMOTE_HOST", "ingest.example.net")
	t.Setenv("FERRY_REMOTE_USER", "ingest")
	t.Setenv("FERRY_INGEST_ROOT", "/srv/ingest")

	cfg, _, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Sync.WorkerID != "worker-09" {
		t.Fatalf("worker id = %q", cfg.Sync.WorkerID)
	}
}

func TestEnvOverrideRejectsBadInteger(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	t.Setenv("FERRY_REMOTE_PORT", "not-a-port")

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "FERRY_REMOTE_PORT") {
		t.Fatalf("expected port parse error, got %v", err)
	}
}

func TestValidateRejectsWorkerIDWithSeparator(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[sync]
worker_id = "bad/worker"
artifact_root = "`+filepath.Join(dir, "artifacts")+`"

[remote]
host = "ingest.example.net"
user = "ingest"
ingest_root = "/srv/ingest"
`)

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "worker_id") {
		t.Fatalf("expected worker id validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownWatchMode(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	t.Setenv("FERRY_WATCH_MODE", "udev")

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "watch.mode") {
		t.Fatalf("expected watch mode validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownCleanup(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	t.Setenv("FERRY_CLEANUP", "shred")

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "push.cleanup") {
		t.Fatalf("expected cleanup validation error, got %v", err)
	}
}

func TestArchiveRootResolution(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(cfg.Sync.ArtifactRoot, "_pushed")
	if got := cfg.ArchiveRoot(); got != want {
		t.Fatalf("relative archive root = %q, want %q", got, want)
	}

	cfg.Push.ArchiveDir = "/var/archive"
	if got := cfg.ArchiveRoot(); got != "/var/archive" {
		t.Fatalf("absolute archive root = %q", got)
	}
}

func TestDerivedPathsLiveInLogDir(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	logDir := cfg.Logging.LogDir
	if cfg.SocketPath() != filepath.Join(logDir, "ferry.sock") {
		t.Fatalf("socket path = %q", cfg.SocketPath())
	}
	if cfg.DatabasePath() != filepath.Join(logDir, "ferry.db") {
		t.Fatalf("database path = %q", cfg.DatabasePath())
	}
	if cfg.PIDPath() != filepath.Join(logDir, "ferry.pid") {
		t.Fatalf("pid path = %q", cfg.PIDPath())
	}

	cfg.API.SocketPath = "/tmp/custom.sock"
	if cfg.SocketPath() != "/tmp/custom.sock" {
		t.Fatalf("socket override ignored: %q", cfg.SocketPath())
	}
}

func TestEnsureDirectoriesCreatesArchive(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Sync.ArtifactRoot, cfg.Logging.LogDir, cfg.ArchiveRoot()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleLoadsWithEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	t.Setenv("FERRY_WORKER_ID", "worker-01")
	t.Setenv("FERRY_ARTIFACT_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("FERRY_REMOTE_HOST", "ingest.example.net")
	t.Setenv("FERRY_REMOTE_USER", "ingest")
	t.Setenv("FERRY_INGEST_ROOT", "/srv/ingest")

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Watch.SweepInterval != 60 {
		t.Fatalf("sample sweep interval = %d", cfg.Watch.SweepInterval)
	}
}
