package pool

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileWatcher polls the YAML files under a directory and triggers a callback
// when any of them is added, removed or modified.
type FileWatcher struct {
	Dir       string
	Interval  time.Duration
	onChange  func(changed []string) // called with paths that changed
	lastMTime map[string]time.Time
}

// NewFileWatcher creates a watcher for dir and interval.
func NewFileWatcher(dir string, interval time.Duration, onChange func([]string)) *FileWatcher {
	return &FileWatcher{
		Dir:       dir,
		Interval:  interval,
		onChange:  onChange,
		lastMTime: make(map[string]time.Time),
	}
}

// Run polls until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	// prime cache
	w.scanAll(true)
	for {
		select {
		case <-ticker.C:
			w.scanAll(false)
		case <-ctx.Done():
			return nil
		}
	}
}

// scanAll checks mtimes and invokes onChange once per scan with every file
// that changed since the last scan.
func (w *FileWatcher) scanAll(prime bool) {
	seen := make(map[string]bool, len(w.lastMTime))
	var changed []string
	err := filepath.WalkDir(w.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped; the next scan retries them
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		fi, err := os.Stat(path)
		if err != nil {
			return nil
		}
		seen[path] = true
		mt := fi.ModTime()
		last, ok := w.lastMTime[path]
		if !ok || mt.After(last) {
			w.lastMTime[path] = mt
			changed = append(changed, path)
		}
		return nil
	})
	if err != nil {
		slog.Warn("catalog watch scan failed", "dir", w.Dir, "err", err)
	}
	for path := range w.lastMTime {
		if !seen[path] {
			delete(w.lastMTime, path)
			changed = append(changed, path)
		}
	}
	if !prime && len(changed) > 0 && w.onChange != nil {
		w.onChange(changed)
	}
}
