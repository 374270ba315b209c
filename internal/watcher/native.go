package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"ferry/internal/artifact"
	"ferry/internal/logging"
)

// startNative opens an fsnotify watcher on the artifact root and on every
// existing artifact directory, so sentinel writes inside them are seen.
func (w *Watcher) startNative() (*fsnotify.Watcher, error) {
	native, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := native.Add(w.cfg.Sync.ArtifactRoot); err != nil {
		native.Close()
		return nil, err
	}

	dirs, err := artifact.List(w.cfg.Sync.ArtifactRoot, w.cfg.ArchiveRoot())
	if err != nil {
		native.Close()
		return nil, err
	}
	for _, dir := range dirs {
		if err := native.Add(dir.Path); err != nil {
			w.logger.Debug("cannot watch artifact directory",
				logging.String(logging.FieldArtifact, dir.Name),
				logging.Error(err),
			)
		}
	}
	return native, nil
}

// consumeNative translates filesystem notifications into stream events until
// ctx is done or the native watcher closes.
func (w *Watcher) consumeNative(ctx context.Context, native *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-native.Events:
			if !ok {
				return
			}
			w.handleNotify(ctx, native, event)
		case err, ok := <-native.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "native watcher error", "watcher_notify_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the safety-net sweep still covers missed events"),
			)
		}
	}
}

func (w *Watcher) handleNotify(ctx context.Context, native *fsnotify.Watcher, event fsnotify.Event) {
	base := filepath.Base(event.Name)
	parent := filepath.Dir(event.Name)

	// A new top-level directory: start watching it for sentinel writes. The
	// next sweep covers anything written before the watch landed.
	if parent == w.cfg.Sync.ArtifactRoot && event.Op.Has(fsnotify.Create) {
		w.watchNewDirectory(native, event.Name, base)
		return
	}

	switch base {
	case artifact.SentinelReady:
		if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
			return
		}
		w.emitForDir(ctx, parent)
	case artifact.SentinelDone:
		if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
			return
		}
		dir := artifact.At(w.cfg.Sync.ArtifactRoot, filepath.Base(parent))
		if _, err := dir.Promote(); err != nil {
			logging.WarnWithContext(w.logger, "failed to promote artifact", "promote_failed",
				logging.String(logging.FieldArtifact, dir.Name),
				logging.Error(err),
			)
			return
		}
		w.emitForDir(ctx, parent)
	}
}

func (w *Watcher) watchNewDirectory(native *fsnotify.Watcher, path, base string) {
	if strings.HasPrefix(base, ".") || path == filepath.Clean(w.cfg.ArchiveRoot()) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := native.Add(path); err != nil {
		w.logger.Debug("cannot watch artifact directory",
			logging.String(logging.FieldArtifact, base),
			logging.Error(err),
		)
		return
	}
	w.logger.Debug("watching new artifact directory", logging.String(logging.FieldArtifact, base))
}

// emitForDir queues the artifact containing a sentinel event if it is ready
// and not already handled.
func (w *Watcher) emitForDir(ctx context.Context, dirPath string) {
	if filepath.Dir(dirPath) != w.cfg.Sync.ArtifactRoot {
		return
	}
	dir := artifact.At(w.cfg.Sync.ArtifactRoot, filepath.Base(dirPath))
	if dir.HasFailed() || dir.HasPushed() || !dir.HasReady() {
		return
	}
	if dir.HasPushing() && w.lockFresh(dir) {
		return
	}
	w.enqueue(ctx, dir, TriggerNative)
}
