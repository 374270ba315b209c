package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/logs"
)

// resolveArtifactArg accepts either a bare directory name under the artifact
// root or a filesystem path to an artifact directory.
func resolveArtifactArg(cfg *config.Config, arg string) (artifact.Dir, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return artifact.Dir{}, errors.New("artifact name or path is required")
	}

	if strings.ContainsRune(arg, os.PathSeparator) {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return artifact.Dir{}, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return artifact.Dir{}, fmt.Errorf("inspect %s: %w", path, err)
		}
		if !info.IsDir() {
			return artifact.Dir{}, fmt.Errorf("%s is not an artifact directory", path)
		}
		return artifact.Dir{Path: path, Name: filepath.Base(path)}, nil
	}

	dir := artifact.At(cfg.Sync.ArtifactRoot, arg)
	info, err := os.Stat(dir.Path)
	if err != nil {
		return artifact.Dir{}, fmt.Errorf("artifact %s not found under %s: %w", arg, cfg.Sync.ArtifactRoot, err)
	}
	if !info.IsDir() {
		return artifact.Dir{}, fmt.Errorf("%s is not a directory", dir.Path)
	}
	return dir, nil
}

// commandLogger builds a logger that records to ferry.log without echoing to
// the terminal, so one-shot commands keep their stdout clean.
func commandLogger(cfg *config.Config) (*slog.Logger, error) {
	logFile := logs.CurrentPath(cfg.Logging.LogDir)
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{logFile},
		ErrorOutputPaths: []string{logFile},
	})
}
