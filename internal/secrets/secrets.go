package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ferry/internal/fileutil"
)

// Sentinel errors for the two credential classes. The CLI maps each to its
// own exit code so wrapper scripts can tell them apart.
var (
	ErrIdentityNotFound   = errors.New("ssh identity not found")
	ErrKnownHostsNotFound = errors.New("host key pins not found")
)

// systemKnownHosts is the fallback source of host-key pins when the
// configured path yields nothing.
var systemKnownHosts = "/etc/ssh/ssh_known_hosts"

// ResolveIdentity locates the ssh private key. The configured path may name
// the key file itself or a directory holding exactly one file.
func ResolveIdentity(path string) (string, error) {
	resolved, err := resolveFile(path)
	if err != nil {
		return "", fmt.Errorf("%w at %s: %w", ErrIdentityNotFound, path, err)
	}
	return resolved, nil
}

// ResolveKnownHosts locates the pinned host keys for the ingest host using
// the same file-or-single-file-directory convention, falling back to the
// system-wide known-hosts file when the configured path yields nothing.
func ResolveKnownHosts(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		if resolved, err := resolveFile(path); err == nil {
			return resolved, nil
		}
	}
	if info, err := os.Stat(systemKnownHosts); err == nil && info.Mode().IsRegular() {
		return systemKnownHosts, nil
	}
	return "", fmt.Errorf("%w: checked %s and %s", ErrKnownHostsNotFound, path, systemKnownHosts)
}

// Stage copies the resolved identity into a fresh 0700 temp directory as a
// 0600 file named key. ssh rejects identities with looser modes. The cleanup
// func removes the staging directory and is safe to call more than once.
func Stage(keyPath string) (string, func(), error) {
	stagingDir, err := os.MkdirTemp("", "ferry-key-")
	if err != nil {
		return "", nil, fmt.Errorf("create key staging dir: %w", err)
	}

	staged := filepath.Join(stagingDir, "key")
	if err := fileutil.CopyFileMode(keyPath, staged, 0o600); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", nil, fmt.Errorf("stage identity: %w", err)
	}

	cleanup := func() { _ = os.RemoveAll(stagingDir) }
	return staged, cleanup, nil
}

// resolveFile implements the shared resolution convention: a regular file is
// used directly; a directory is accepted when it contains exactly one
// regular file.
func resolveFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("no path configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Mode().IsRegular() {
		return path, nil
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is neither a file nor a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	switch len(files) {
	case 0:
		return "", fmt.Errorf("directory %s contains no files", path)
	case 1:
		return files[0], nil
	default:
		return "", fmt.Errorf("directory %s contains %d files, expected exactly one", path, len(files))
	}
}
