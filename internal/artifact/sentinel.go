package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ferry/internal/services"
)

// Sentinel file names, in lifecycle order.
const (
	SentinelDone    = ".DONE"
	SentinelReady   = ".READY"
	SentinelPushing = ".PUSHING"
	SentinelPushed  = ".PUSHED"
	SentinelFailed  = ".FAILED"
)

const archiveStampLayout = "20060102T150405Z"

// Sentinels lists every sentinel file name. Transfers exclude all of them so
// the ingest side never sees a partial lifecycle.
func Sentinels() []string {
	return []string{SentinelDone, SentinelReady, SentinelPushing, SentinelPushed, SentinelFailed}
}

// Promote upgrades a completed render to ready: a .DONE without .READY gains
// an empty .READY. Reports whether a promotion happened. An already promoted
// or still rendering directory is left untouched.
func (d Dir) Promote() (bool, error) {
	if !d.HasDone() || d.HasReady() {
		return false, nil
	}
	if err := os.WriteFile(d.SentinelPath(SentinelReady), nil, 0o644); err != nil {
		return false, fmt.Errorf("promote %s: %w", d.Name, err)
	}
	return true, nil
}

// AcquireLock claims the directory for a push attempt by creating .PUSHING
// with O_EXCL. The file records the claim time in UTC. A directory that is
// already locked yields services.ErrLocked.
func (d Dir) AcquireLock(now time.Time) error {
	file, err := os.OpenFile(d.SentinelPath(SentinelPushing), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return services.Wrap(services.ErrLocked, "artifact", "lock",
				fmt.Sprintf("%s already has a push in flight", d.Name), nil)
		}
		return fmt.Errorf("lock %s: %w", d.Name, err)
	}

	_, writeErr := file.WriteString(now.UTC().Format(time.RFC3339) + "\n")
	closeErr := file.Close()
	if writeErr != nil {
		return fmt.Errorf("lock %s: %w", d.Name, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("lock %s: %w", d.Name, closeErr)
	}
	return nil
}

// ReleaseLock removes .PUSHING. A missing lock is not an error so release is
// safe on every exit path.
func (d Dir) ReleaseLock() error {
	err := os.Remove(d.SentinelPath(SentinelPushing))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlock %s: %w", d.Name, err)
	}
	return nil
}

// LockAge reports how long the directory has been locked, preferring the
// timestamp recorded inside .PUSHING and falling back to the file's mtime
// when the content does not parse.
func (d Dir) LockAge(now time.Time) (time.Duration, error) {
	lockPath := d.SentinelPath(SentinelPushing)

	raw, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, err
	}
	if stamp := strings.TrimSpace(string(raw)); stamp != "" {
		if claimed, parseErr := time.Parse(time.RFC3339, stamp); parseErr == nil {
			return now.Sub(claimed), nil
		}
	}

	info, err := os.Stat(lockPath)
	if err != nil {
		return 0, err
	}
	return now.Sub(info.ModTime()), nil
}

// MarkPushed records successful replication with the completion time in UTC.
func (d Dir) MarkPushed(now time.Time) error {
	payload := now.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(d.SentinelPath(SentinelPushed), []byte(payload), 0o644); err != nil {
		return fmt.Errorf("mark pushed %s: %w", d.Name, err)
	}
	return nil
}

// MarkFailed records the terminal failure sentinel with the time and reason.
// A failed artifact is skipped until an operator removes the sentinel.
func (d Dir) MarkFailed(now time.Time, reason string) error {
	line := now.UTC().Format(time.RFC3339)
	if reason = strings.TrimSpace(reason); reason != "" {
		line += " " + reason
	}
	if err := os.WriteFile(d.SentinelPath(SentinelFailed), []byte(line+"\n"), 0o644); err != nil {
		return fmt.Errorf("mark failed %s: %w", d.Name, err)
	}
	return nil
}

// ClearFailed removes the terminal sentinel so the artifact becomes eligible
// again. Used by the promote command when an operator retries a failure.
func (d Dir) ClearFailed() error {
	err := os.Remove(d.SentinelPath(SentinelFailed))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear failed %s: %w", d.Name, err)
	}
	return nil
}

// ArchiveTarget returns the timestamped destination for an archived artifact,
// for example <archiveRoot>/render_042.20240101T153000Z.
func ArchiveTarget(archiveRoot, name string, now time.Time) string {
	return filepath.Join(archiveRoot, name+"."+now.UTC().Format(archiveStampLayout))
}

// RemotePath returns the ingest-side directory for an artifact, laid out as
// <ingest root>/<worker id>/<name>. Remote paths always use forward slashes.
func RemotePath(ingestRoot, workerID, name string) string {
	return path.Join(ingestRoot, workerID, name)
}
