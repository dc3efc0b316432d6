package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"signalscribe/pkg/logger"
)

// seedKnownFiles records the files present at startup so the first polling
// pass doesn't treat the existing tree as "newly created".
func (w *Watcher) seedKnownFiles() {
	_ = filepath.WalkDir(w.cfg.RootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		w.knownFiles[path] = struct{}{}
		return nil
	})
}

// runPolling is the fallback event source used when native notifications
// can't be established. It walks the tree on a fixed interval and treats
// any file not previously seen as a creation.
func (w *Watcher) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(w.cfg.RootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if isHiddenPath(path) && path != w.cfg.RootDir {
				return filepath.SkipDir
			}
			if !w.cfg.Recursive && path != w.cfg.RootDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isHiddenPath(path) {
			return nil
		}
		seen[path] = struct{}{}
		if _, known := w.knownFiles[path]; !known {
			if filepath.Base(path) == colorsFileName {
				w.reloadRules(path)
			} else if w.matchesFormat(path) {
				w.emit(path)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("polling walk failed", "error", err)
		return
	}
	w.knownFiles = seen
}
