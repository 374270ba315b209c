package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeSync(); err != nil {
		return err
	}
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	c.normalizeWatch()
	if err := c.normalizePush(); err != nil {
		return err
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.normalizeAPI()
	return nil
}

func (c *Config) normalizeSync() error {
	c.Sync.WorkerID = strings.TrimSpace(c.Sync.WorkerID)
	if c.Sync.WorkerID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("sync.worker_id: derive hostname: %w", err)
		}
		c.Sync.WorkerID = hostname
	}

	var err error
	if c.Sync.ArtifactRoot, err = expandPath(c.Sync.ArtifactRoot); err != nil {
		return fmt.Errorf("sync.artifact_root: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() error {
	c.Remote.Host = strings.TrimSpace(c.Remote.Host)
	c.Remote.User = strings.TrimSpace(c.Remote.User)
	c.Remote.IngestRoot = strings.TrimSpace(c.Remote.IngestRoot)

	var err error
	if c.Remote.Identity, err = expandPath(c.Remote.Identity); err != nil {
		return fmt.Errorf("remote.identity: %w", err)
	}
	if c.Remote.KnownHosts, err = expandPath(c.Remote.KnownHosts); err != nil {
		return fmt.Errorf("remote.known_hosts: %w", err)
	}
	if c.Remote.ConnectTimeout <= 0 {
		c.Remote.ConnectTimeout = defaultConnectTimeout
	}
	return nil
}

func (c *Config) normalizeWatch() {
	c.Watch.Mode = strings.ToLower(strings.TrimSpace(c.Watch.Mode))
	if c.Watch.Mode == "" {
		c.Watch.Mode = defaultWatchMode
	}
}

func (c *Config) normalizePush() error {
	c.Push.Cleanup = strings.ToLower(strings.TrimSpace(c.Push.Cleanup))
	if c.Push.Cleanup == "" {
		c.Push.Cleanup = defaultCleanup
	}
	c.Push.ArchiveDir = strings.TrimSpace(c.Push.ArchiveDir)
	if c.Push.ArchiveDir == "" {
		c.Push.ArchiveDir = defaultArchiveDir
	}
	c.Push.RsyncBinary = strings.TrimSpace(c.Push.RsyncBinary)
	if c.Push.RsyncBinary == "" {
		c.Push.RsyncBinary = defaultRsyncBinary
	}
	c.Push.SSHBinary = strings.TrimSpace(c.Push.SSHBinary)
	if c.Push.SSHBinary == "" {
		c.Push.SSHBinary = defaultSSHBinary
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	var err error
	if c.Logging.LogDir, err = expandPath(c.Logging.LogDir); err != nil {
		return fmt.Errorf("logging.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.SocketPath = strings.TrimSpace(c.API.SocketPath)
	c.API.HTTPBind = strings.TrimSpace(c.API.HTTPBind)
}
