package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Sync contains the worker identity and the local artifact root.
type Sync struct {
	WorkerID     string `toml:"worker_id"`
	ArtifactRoot string `toml:"artifact_root"`
}

// Remote contains ingest host connection settings.
type Remote struct {
	Host           string `toml:"host"`
	User           string `toml:"user"`
	Port           int    `toml:"port"`
	IngestRoot     string `toml:"ingest_root"`
	Identity       string `toml:"identity"`
	KnownHosts     string `toml:"known_hosts"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Watch contains readiness detection settings.
type Watch struct {
	Mode          string `toml:"mode"`
	SweepInterval int    `toml:"sweep_interval"`
}

// Push contains transfer and cleanup behavior settings.
type Push struct {
	MaxAttempts      int    `toml:"max_attempts"`
	StaleLockMinutes int    `toml:"stale_lock_minutes"`
	Cleanup          string `toml:"cleanup"`
	ArchiveDir       string `toml:"archive_dir"`
	RsyncBinary      string `toml:"rsync_binary"`
	SSHBinary        string `toml:"ssh_binary"`
}

// Retention contains archive pruning settings.
type Retention struct {
	Days          int `toml:"days"`
	SweepInterval int `toml:"sweep_interval"`
	MinFreeGiB    int `toml:"min_free_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	LogDir        string `toml:"log_dir"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Pushes         bool   `toml:"pushes"`
	Failures       bool   `toml:"failures"`
	Retention      bool   `toml:"retention"`
	Daemon         bool   `toml:"daemon"`
}

// API contains the control socket and the optional HTTP listener.
type API struct {
	SocketPath string `toml:"socket_path"`
	HTTPBind   string `toml:"http_bind"`
}

// Watch mode values accepted by [watch].mode.
const (
	WatchModeEvent = "event"
	WatchModePoll  = "poll"
	WatchModeAuto  = "auto"
)

// Cleanup policy values accepted by [push].cleanup.
const (
	CleanupNone    = "none"
	CleanupDelete  = "delete"
	CleanupArchive = "archive"
)

// Config encapsulates all configuration values for ferry.
//
// Configuration sections by subsystem:
//   - Sync: worker identity and the artifact root being replicated
//   - Remote: ingest host address, credentials, and remote ingest root
//   - Watch: readiness detection mode and sweep interval
//   - Push: attempt limits, lock staleness, cleanup policy, tool binaries
//   - Retention: archive pruning window, interval, and free-space floor
//   - Logging: log format, level, directory, and retention
//   - Notifications: ntfy topic and per-event toggles
//   - API: control socket path and optional HTTP health/metrics listener
type Config struct {
	Sync          Sync          `toml:"sync"`
	Remote        Remote        `toml:"remote"`
	Watch         Watch         `toml:"watch"`
	Push          Push          `toml:"push"`
	Retention     Retention     `toml:"retention"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ferry/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has environment overrides applied and all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ResolvePath reports which configuration file a load would read and whether
// that file exists, without parsing or validating it.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ferry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ArchiveRoot resolves the archive directory. Relative values are anchored at
// the artifact root so the reserved prefix stays inside the watched tree.
func (c *Config) ArchiveRoot() string {
	dir := strings.TrimSpace(c.Push.ArchiveDir)
	if dir == "" {
		dir = defaultArchiveDir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.Sync.ArtifactRoot, dir)
}

// SocketPath returns the control socket location, derived from the log
// directory unless overridden in [api].
func (c *Config) SocketPath() string {
	if path := strings.TrimSpace(c.API.SocketPath); path != "" {
		return path
	}
	return filepath.Join(c.Logging.LogDir, "ferry.sock")
}

// DatabasePath returns the history ledger location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Logging.LogDir, "ferry.db")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Logging.LogDir, "ferry.pid")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Logging.LogDir, "ferry.lock")
}

// EnsureDirectories creates required directories for daemon operation. The
// archive root is created only when the archive cleanup policy is active.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Sync.ArtifactRoot, c.Logging.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Push.Cleanup == CleanupArchive {
		if err := os.MkdirAll(c.ArchiveRoot(), 0o755); err != nil {
			return fmt.Errorf("create archive directory %q: %w", c.ArchiveRoot(), err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
