// Package watch reruns a callback when the refs of a repository change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/wily-go/internal/debounce"
)

// DefaultDelay is how long the git directory must stay quiet before the
// callback runs.
const DefaultDelay = 350 * time.Millisecond

// Run watches the git directory of root until ctx is done. Bursts of changes
// are coalesced and onChange runs on the calling goroutine, never twice at
// the same time. Errors from onChange are logged and watching goes on.
func Run(ctx context.Context, root string, delay time.Duration, onChange func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("watcher close", slog.Any("error", err))
		}
	}()
	for path := range watchPaths(root) {
		slog.Debug("adding path to FS watcher", slog.String("path", path))
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	pending := make(chan struct{}, 1)
	d := debounce.New(delay, func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	defer d.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnoreWatchPath(ev.Name) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			d.Trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		case <-pending:
			if err := onChange(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				slog.Error("rebuild failed", slog.Any("error", err))
			}
		}
	}
}

// watchPaths returns the git directory and its ref directories, or root when
// it has no .git directory (worktrees, bare repositories).
func watchPaths(root string) iter.Seq[string] {
	uniquePaths := map[string]struct{}{}
	appendUnique := func(p string) { uniquePaths[p] = struct{}{} }
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		appendUnique(root)
		return maps.Keys(uniquePaths)
	}
	appendUnique(gitDir)
	for _, sub := range []string{"refs/heads", "refs/tags"} {
		dir := filepath.Join(gitDir, filepath.FromSlash(sub))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			appendUnique(dir)
		}
	}
	return maps.Keys(uniquePaths)
}

// shouldIgnoreWatchPath drops lock files and the files a build itself
// rewrites while checking revisions out.
func shouldIgnoreWatchPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".lock" || ext == ".ipc" {
		return true
	}
	switch filepath.Base(name) {
	case "index", "WILY_CHECKOUT":
		return true
	}
	return false
}
