package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validatePush(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.WorkerID == "" {
		return errors.New("sync.worker_id must be set (or FERRY_WORKER_ID)")
	}
	if strings.ContainsAny(c.Sync.WorkerID, "/\\ \t") {
		return fmt.Errorf("sync.worker_id %q must not contain path separators or whitespace; it becomes a remote path segment", c.Sync.WorkerID)
	}
	if c.Sync.ArtifactRoot == "" {
		return errors.New("sync.artifact_root must be set (or FERRY_ARTIFACT_ROOT)")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.Host == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/ferry/config.toml"
		}
		return fmt.Errorf("remote.host is required. Set FERRY_REMOTE_HOST or edit %s (create with 'ferry config init')", defaultPath)
	}
	if c.Remote.User == "" {
		return errors.New("remote.user must be set (or FERRY_REMOTE_USER)")
	}
	if c.Remote.IngestRoot == "" {
		return errors.New("remote.ingest_root must be set (or FERRY_INGEST_ROOT)")
	}
	if c.Remote.Port < 1 || c.Remote.Port > 65535 {
		return fmt.Errorf("remote.port %d must be between 1 and 65535", c.Remote.Port)
	}
	if c.Remote.Identity == "" {
		return errors.New("remote.identity must be set")
	}
	return nil
}

func (c *Config) validateWatch() error {
	switch c.Watch.Mode {
	case WatchModeEvent, WatchModePoll, WatchModeAuto:
	default:
		return fmt.Errorf("watch.mode %q must be one of event, poll, auto", c.Watch.Mode)
	}
	if c.Watch.SweepInterval <= 0 {
		return errors.New("watch.sweep_interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validatePush() error {
	if c.Push.MaxAttempts < 1 {
		return errors.New("push.max_attempts must be at least 1")
	}
	if c.Push.StaleLockMinutes < 1 {
		return errors.New("push.stale_lock_minutes must be at least 1")
	}
	switch c.Push.Cleanup {
	case CleanupNone, CleanupDelete, CleanupArchive:
	default:
		return fmt.Errorf("push.cleanup %q must be one of none, delete, archive", c.Push.Cleanup)
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Days < 1 {
		return errors.New("retention.days must be at least 1")
	}
	if c.Retention.SweepInterval <= 0 {
		return errors.New("retention.sweep_interval must be positive (seconds)")
	}
	if c.Retention.MinFreeGiB < 0 {
		return errors.New("retention.min_free_gib must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
