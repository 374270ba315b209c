package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"ferry/internal/config"
	"ferry/internal/ipc"
)

// commandContext carries the state shared by every CLI command: the persistent
// flag values and a lazily loaded configuration.
type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{socketFlag: socketFlag, configFlag: configFlag}
}

// ensureConfig loads the configuration once per invocation and fans the same
// result out to every command that asks for it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var requested string
		if c.configFlag != nil {
			requested = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(requested)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// configValue returns the loaded configuration or nil when loading failed. Use
// ensureConfig when the error matters.
func (c *commandContext) configValue() *config.Config {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	return cfg
}

// socketPath resolves the daemon socket, preferring the --socket flag and
// falling back to the configured location. The resolved value is written back
// into the flag so later lookups stay stable.
func (c *commandContext) socketPath() string {
	if c.socketFlag != nil {
		if trimmed := strings.TrimSpace(*c.socketFlag); trimmed != "" {
			return trimmed
		}
	}
	path := ""
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		path = cfg.SocketPath()
	} else {
		path = defaultSocketPath()
	}
	if c.socketFlag != nil {
		*c.socketFlag = path
	}
	return path
}

func (c *commandContext) withClient(fn func(client *ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socketPath := c.socketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return nil, wrapDialError(socketPath, err)
	}
	return client, nil
}

func wrapDialError(socketPath string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `ferry start`", socketPath)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socketPath)
	default:
		return fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
}

// defaultSocketPath mirrors the daemon's socket resolution for hosts where the
// configuration cannot be loaded at all.
func defaultSocketPath() string {
	if cfg, _, _, err := config.Load(""); err == nil {
		return cfg.SocketPath()
	}
	if dir, err := config.ExpandPath("~/.local/share/ferry/logs"); err == nil {
		return filepath.Join(dir, "ferry.sock")
	}
	return filepath.Join(os.TempDir(), "ferry.sock")
}

// shouldSkipConfig reports whether the command or one of its parents opted out
// of configuration loading via the skipConfigLoad annotation.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for current := cmd; current != nil; current = current.Parent() {
		if current.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
