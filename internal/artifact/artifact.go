package artifact

import (
	"os"
	"path/filepath"
	"strings"
)

// Lifecycle states derived from sentinel files.
const (
	StateNew     = "new"
	StateDone    = "done"
	StateReady   = "ready"
	StatePushing = "pushing"
	StatePushed  = "pushed"
	StateFailed  = "failed"
)

// Dir identifies one artifact directory beneath the sync root.
type Dir struct {
	Path string
	Name string
}

// At returns the Dir for name under root without touching the filesystem.
func At(root, name string) Dir {
	return Dir{Path: filepath.Join(root, name), Name: name}
}

// List enumerates the artifact directories immediately beneath root. The
// archive root and dot-directories are excluded; plain files are ignored.
// Results come back in lexical order, which fixes the sweep order.
func List(root, archiveRoot string) ([]Dir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	archive := ""
	if archiveRoot != "" {
		archive = filepath.Clean(archiveRoot)
	}

	var dirs []Dir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(root, name)
		if archive != "" && path == archive {
			continue
		}
		dirs = append(dirs, Dir{Path: path, Name: name})
	}
	return dirs, nil
}

// SentinelPath returns the absolute path of a sentinel file inside the dir.
func (d Dir) SentinelPath(sentinel string) string {
	return filepath.Join(d.Path, sentinel)
}

func (d Dir) hasSentinel(sentinel string) bool {
	_, err := os.Stat(d.SentinelPath(sentinel))
	return err == nil
}

// HasDone reports whether the render wrote its completion sentinel.
func (d Dir) HasDone() bool { return d.hasSentinel(SentinelDone) }

// HasReady reports whether the artifact is eligible for pushing.
func (d Dir) HasReady() bool { return d.hasSentinel(SentinelReady) }

// HasPushing reports whether a push attempt holds the directory lock.
func (d Dir) HasPushing() bool { return d.hasSentinel(SentinelPushing) }

// HasPushed reports whether the artifact was replicated successfully.
func (d Dir) HasPushed() bool { return d.hasSentinel(SentinelPushed) }

// HasFailed reports whether the artifact reached the terminal failure state.
func (d Dir) HasFailed() bool { return d.hasSentinel(SentinelFailed) }

// State summarizes the lifecycle position of the directory. Terminal and
// in-flight sentinels win over readiness.
func (d Dir) State() string {
	switch {
	case d.HasFailed():
		return StateFailed
	case d.HasPushed():
		return StatePushed
	case d.HasPushing():
		return StatePushing
	case d.HasReady():
		return StateReady
	case d.HasDone():
		return StateDone
	default:
		return StateNew
	}
}
