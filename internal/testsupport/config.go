package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a validated config seeded with unique temp directories,
// a poll-mode watcher, fixture ssh credentials, and the HTTP listener off.
// The default sweep interval is long enough that background sweeps stay out
// of the way unless a test opts into them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Sync.WorkerID = "gpu-07"
	cfgVal.Sync.ArtifactRoot = filepath.Join(base, "artifacts")
	cfgVal.Logging.LogDir = filepath.Join(base, "logs")
	cfgVal.Remote.Host = "ingest.example.net"
	cfgVal.Remote.User = "ingest"
	cfgVal.Remote.IngestRoot = "/srv/ingest"
	cfgVal.Watch.Mode = config.WatchModePoll
	cfgVal.Watch.SweepInterval = 3600
	cfgVal.API.HTTPBind = ""

	identity := filepath.Join(base, "id_ed25519")
	if err := os.WriteFile(identity, []byte("key material"), 0o600); err != nil {
		t.Fatalf("write identity: %v", err)
	}
	cfgVal.Remote.Identity = identity
	knownHosts := filepath.Join(base, "known_hosts")
	if err := os.WriteFile(knownHosts, []byte("ingest.example.net ssh-ed25519 AAAA\n"), 0o644); err != nil {
		t.Fatalf("write known hosts: %v", err)
	}
	cfgVal.Remote.KnownHosts = knownHosts

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{builder.cfg.Sync.ArtifactRoot, builder.cfg.Logging.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("validate test config: %v", err)
	}
	return builder.cfg
}

// WithWorkerID overrides the worker identity.
func WithWorkerID(id string) ConfigOption {
	return func(b *configBuilder) { b.cfg.Sync.WorkerID = id }
}

// WithWatchMode selects the readiness detection mode.
func WithWatchMode(mode string) ConfigOption {
	return func(b *configBuilder) { b.cfg.Watch.Mode = mode }
}

// WithSweepInterval sets the background sweep cadence in seconds.
func WithSweepInterval(seconds int) ConfigOption {
	return func(b *configBuilder) { b.cfg.Watch.SweepInterval = seconds }
}

// WithCleanup selects the post-push cleanup policy.
func WithCleanup(policy string) ConfigOption {
	return func(b *configBuilder) { b.cfg.Push.Cleanup = policy }
}

// WithHTTPBind enables the HTTP listener on the given address.
func WithHTTPBind(bind string) ConfigOption {
	return func(b *configBuilder) { b.cfg.API.HTTPBind = bind }
}

// WithTransferBinaries overrides the rsync and ssh binaries so tests can
// substitute tools that are guaranteed to exist.
func WithTransferBinaries(rsyncBin, sshBin string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Push.RsyncBinary = rsyncBin
		b.cfg.Push.SSHBinary = sshBin
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Sync.ArtifactRoot)
}
