// Package watcher observes a directory for newly created or moved-in audio
// files and turns them into Jobs, and reloads colors.yaml on change. It
// mirrors the recursive-add/event-loop shape of the teacher's dropzone
// service, generalized from a fixed upload pipeline to the spec's matching
// and suppression rules.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"signalscribe/internal/highlight"
	"signalscribe/internal/job"
	"signalscribe/internal/queue"
	"signalscribe/pkg/logger"
)

const (
	colorsFileName          = "colors.yaml"
	defaultPollInterval     = time.Second
	renameSuppressionWindow = 2 * time.Second
)

// Config configures a Watcher.
type Config struct {
	RootDir      string
	Formats      []string // lowercase extensions without the dot, e.g. "mp3"
	Recursive    bool
	PollInterval time.Duration
}

// Watcher is the pipeline's Job producer.
type Watcher struct {
	cfg   Config
	exts  map[string]struct{}
	out   *queue.TrackedQueue[*job.Job]
	rules *highlight.Rules

	fsw        *fsnotify.Watcher
	usePolling bool
	ctx        context.Context

	mu            sync.Mutex
	recentRenames map[string]renameRecord
	knownFiles    map[string]struct{} // polling-mode baseline
}

type renameRecord struct {
	dir string
	at  time.Time
}

// New validates cfg and prepares a Watcher. It does not yet touch the
// filesystem watch API; call Start for that.
func New(cfg Config, out *queue.TrackedQueue[*job.Job], rules *highlight.Rules) (*Watcher, error) {
	if cfg.RootDir == "" {
		return nil, errors.New("watcher: root directory is required")
	}
	info, err := os.Stat(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watcher: %s is not a directory", cfg.RootDir)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	exts := make(map[string]struct{}, len(cfg.Formats))
	for _, f := range cfg.Formats {
		exts["."+strings.ToLower(strings.TrimPrefix(f, "."))] = struct{}{}
	}

	return &Watcher{
		cfg:           cfg,
		exts:          exts,
		out:           out,
		rules:         rules,
		recentRenames: make(map[string]renameRecord),
		knownFiles:    make(map[string]struct{}),
	}, nil
}

// Start establishes the watch (native notifications, falling back to
// polling automatically if initialization fails) and begins emitting Jobs.
// It blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("native file notifications unavailable, falling back to polling", "error", err)
		w.usePolling = true
	} else {
		w.fsw = fsw
		if err := w.addTree(w.cfg.RootDir); err != nil {
			fsw.Close()
			logger.Warn("failed to establish native watch, falling back to polling", "error", err)
			w.usePolling = true
			w.fsw = nil
		}
	}

	if w.usePolling {
		w.seedKnownFiles()
		return w.runPolling(ctx)
	}
	defer w.fsw.Close()
	return w.runNative(ctx)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if isHiddenPath(path) && path != root {
				return filepath.SkipDir
			}
			if path == root || w.cfg.Recursive {
				if werr := w.fsw.Add(path); werr != nil {
					logger.Warn("failed to watch directory", "path", path, "error", werr)
				}
			} else if path != root {
				return filepath.SkipDir
			}
		}
		return nil
	})
}

func (w *Watcher) runNative(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if isHiddenPath(ev.Name) {
		return
	}

	switch {
	case ev.Op&fsnotify.Rename != 0:
		w.mu.Lock()
		w.recentRenames[filepath.Base(ev.Name)] = renameRecord{dir: filepath.Dir(ev.Name), at: time.Now()}
		w.mu.Unlock()
		return

	case ev.Op&fsnotify.Create != 0:
		info, err := os.Stat(ev.Name)
		if err != nil {
			return // gone already; nothing to ingest
		}
		if info.IsDir() {
			if w.cfg.Recursive {
				if err := w.addTree(ev.Name); err != nil {
					logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
			return
		}
		w.maybeEmit(ev.Name)

	case ev.Op&fsnotify.Write != 0:
		if filepath.Base(ev.Name) == colorsFileName {
			w.reloadRules(ev.Name)
		}

	case ev.Op&fsnotify.Remove != 0:
		return // deletions are ignored
	}
}

// maybeEmit applies the matching and suppression rules to a created file.
func (w *Watcher) maybeEmit(path string) {
	base := filepath.Base(path)

	if base == colorsFileName {
		w.reloadRules(path)
		return
	}

	if !w.matchesFormat(path) {
		return
	}

	if w.suppressedByRename(path) {
		logger.Debug("suppressing job for file moved within watched tree", "path", path)
		return
	}

	w.emit(path)
}

// suppressedByRename implements "moved events where source and destination
// are in a parent/child relationship under the same visible tree are
// suppressed": if this path's basename was the target of a Rename observed
// moments ago, and the rename's source directory is an ancestor or
// descendant of this file's directory, treat it as reorganization rather
// than new ingest.
func (w *Watcher) suppressedByRename(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.recentRenames[filepath.Base(path)]
	if !ok || time.Since(rec.at) > renameSuppressionWindow {
		return false
	}
	delete(w.recentRenames, filepath.Base(path))

	dir := filepath.Dir(path)
	return isAncestorOrDescendant(rec.dir, dir)
}

func isAncestorOrDescendant(a, b string) bool {
	rel, err := filepath.Rel(a, b)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return true
	}
	rel, err = filepath.Rel(b, a)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (w *Watcher) matchesFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := w.exts[ext]
	return ok
}

func (w *Watcher) emit(path string) {
	j := job.New(path)
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.out.Put(ctx, j); err != nil {
		logger.Warn("failed to enqueue job", "path", path, "error", err)
	}
}

func (w *Watcher) reloadRules(path string) {
	if w.rules == nil {
		return
	}
	if err := w.rules.Reload(path); err != nil {
		logger.Warn("failed to reload colors.yaml", "error", err)
	}
}
