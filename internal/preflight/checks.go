package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"ferry/internal/config"
	"ferry/internal/history"
	"ferry/internal/secrets"
	"ferry/internal/transfer"
)

// CheckConfig re-validates the loaded configuration.
func CheckConfig(cfg *config.Config) Result {
	const name = "Configuration"
	if err := cfg.Validate(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "valid"}
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable/traversable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStateDir verifies the log/state directory can be created and written.
func CheckStateDir(cfg *config.Config) Result {
	const name = "State directory"
	if err := os.MkdirAll(cfg.Logging.LogDir, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Logging.LogDir, err)}
	}
	return CheckDirectoryAccess(name, cfg.Logging.LogDir)
}

// CheckArchiveRoot verifies the archive destination can be created.
func CheckArchiveRoot(cfg *config.Config) Result {
	const name = "Archive root"
	root := cfg.ArchiveRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", root, err)}
	}
	return CheckDirectoryAccess(name, root)
}

// CheckLedger opens the history database and runs its health query.
func CheckLedger(cfg *config.Config) Result {
	const name = "History ledger"
	store, err := history.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	if err := store.Health(context.Background()); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: store.Path()}
}

// CheckIdentity resolves the ssh private key. Advisory: a daemon without an
// identity still runs, it just fails every push fast until one appears.
func CheckIdentity(cfg *config.Config) Result {
	const name = "SSH identity"
	resolved, err := secrets.ResolveIdentity(cfg.Remote.Identity)
	if err != nil {
		return Result{Name: name, Advisory: true, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Advisory: true, Detail: resolved}
}

// CheckKnownHosts resolves the pinned host keys, fallback included.
func CheckKnownHosts(cfg *config.Config) Result {
	const name = "Host key pins"
	resolved, err := secrets.ResolveKnownHosts(cfg.Remote.KnownHosts)
	if err != nil {
		return Result{Name: name, Advisory: true, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Advisory: true, Detail: resolved}
}

// CheckRemoteAuth probes non-interactive ssh authentication against the
// ingest host. The probe never fails preflight: a worker may boot before its
// network is up, and the pusher surfaces real auth errors soon enough.
func CheckRemoteAuth(ctx context.Context, cfg *config.Config) Result {
	const name = "Remote auth"

	identity, err := secrets.ResolveIdentity(cfg.Remote.Identity)
	if err != nil {
		return Result{Name: name, Passed: true, Advisory: true, Detail: "skipped (identity unresolved)"}
	}
	pins, err := secrets.ResolveKnownHosts(cfg.Remote.KnownHosts)
	if err != nil {
		return Result{Name: name, Passed: true, Advisory: true, Detail: "skipped (host key pins unresolved)"}
	}

	staged, cleanup, err := secrets.Stage(identity)
	if err != nil {
		return Result{Name: name, Passed: true, Advisory: true, Detail: fmt.Sprintf("warning: stage identity: %v", err)}
	}
	defer cleanup()

	client, err := transfer.New(transfer.Endpoint{
		Host:           cfg.Remote.Host,
		User:           cfg.Remote.User,
		Port:           cfg.Remote.Port,
		Identity:       staged,
		KnownHosts:     pins,
		ConnectTimeout: cfg.Remote.ConnectTimeout,
	}, cfg.Push.RsyncBinary, cfg.Push.SSHBinary)
	if err != nil {
		return Result{Name: name, Passed: true, Advisory: true, Detail: fmt.Sprintf("warning: %v", err)}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.Probe(probeCtx); err != nil {
		return Result{Name: name, Passed: true, Advisory: true, Detail: fmt.Sprintf("warning: %v", err)}
	}
	return Result{Name: name, Passed: true, Advisory: true, Detail: "authenticated"}
}
