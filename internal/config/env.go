package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides mirrors the FERRY_* environment surface. All fields are strings
// so an empty value reads as "not set"; parsing happens when the override is
// applied.
type envOverrides struct {
	WorkerID          string `envconfig:"FERRY_WORKER_ID"`
	ArtifactRoot      string `envconfig:"FERRY_ARTIFACT_ROOT"`
	RemoteHost        string `envconfig:"FERRY_REMOTE_HOST"`
	RemoteUser        string `envconfig:"FERRY_REMOTE_USER"`
	RemotePort        string `envconfig:"FERRY_REMOTE_PORT"`
	IngestRoot        string `envconfig:"FERRY_INGEST_ROOT"`
	Identity          string `envconfig:"FERRY_IDENTITY"`
	KnownHosts        string `envconfig:"FERRY_KNOWN_HOSTS"`
	WatchMode         string `envconfig:"FERRY_WATCH_MODE"`
	SweepInterval     string `envconfig:"FERRY_SWEEP_INTERVAL"`
	MaxAttempts       string `envconfig:"FERRY_MAX_ATTEMPTS"`
	Cleanup           string `envconfig:"FERRY_CLEANUP"`
	ArchiveDir        string `envconfig:"FERRY_ARCHIVE_DIR"`
	RetentionDays     string `envconfig:"FERRY_RETENTION_DAYS"`
	RetentionInterval string `envconfig:"FERRY_RETENTION_INTERVAL"`
	MinFreeGiB        string `envconfig:"FERRY_MIN_FREE_GIB"`
	LogLevel          string `envconfig:"FERRY_LOG_LEVEL"`
	NtfyTopic         string `envconfig:"FERRY_NTFY_TOPIC"`
}

// applyEnvOverrides layers FERRY_* environment variables over file values.
// Environment wins over the file, matching the original script surface where
// the environment was the only configuration channel.
func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}

	setString := func(dst *string, value string) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			*dst = trimmed
		}
	}
	setInt := func(dst *int, value, name string) error {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", name, trimmed)
		}
		*dst = parsed
		return nil
	}

	setString(&c.Sync.WorkerID, env.WorkerID)
	setString(&c.Sync.ArtifactRoot, env.ArtifactRoot)
	setString(&c.Remote.Host, env.RemoteHost)
	setString(&c.Remote.User, env.RemoteUser)
	setString(&c.Remote.IngestRoot, env.IngestRoot)
	setString(&c.Remote.Identity, env.Identity)
	setString(&c.Remote.KnownHosts, env.KnownHosts)
	setString(&c.Watch.Mode, env.WatchMode)
	setString(&c.Push.Cleanup, env.Cleanup)
	setString(&c.Push.ArchiveDir, env.ArchiveDir)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Notifications.NtfyTopic, env.NtfyTopic)

	if err := setInt(&c.Remote.Port, env.RemotePort, "FERRY_REMOTE_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Watch.SweepInterval, env.SweepInterval, "FERRY_SWEEP_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&c.Push.MaxAttempts, env.MaxAttempts, "FERRY_MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err := setInt(&c.Retention.Days, env.RetentionDays, "FERRY_RETENTION_DAYS"); err != nil {
		return err
	}
	if err := setInt(&c.Retention.SweepInterval, env.RetentionInterval, "FERRY_RETENTION_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&c.Retention.MinFreeGiB, env.MinFreeGiB, "FERRY_MIN_FREE_GIB"); err != nil {
		return err
	}
	return nil
}
