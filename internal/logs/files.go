package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CurrentName is the stable pointer maintained in the log directory. It
// always refers to the log file of the most recent daemon run.
const CurrentName = "ferry.log"

// RunPattern matches per-run log files for retention sweeps.
const RunPattern = "ferry-*.log"

// RunPath returns the per-run log file path for the given run identifier.
func RunPath(logDir, runID string) string {
	return filepath.Join(logDir, fmt.Sprintf("ferry-%s.log", runID))
}

// CurrentPath returns the stable pointer path inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentName)
}

// PointCurrent repoints the stable log pointer at target. Symlinks are
// preferred; filesystems without symlink support fall back to a hard link.
func PointCurrent(logDir, target string) error {
	if strings.TrimSpace(logDir) == "" || strings.TrimSpace(target) == "" {
		return nil
	}
	current := CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
