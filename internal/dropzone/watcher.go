// Package dropzone watches a directory and hands files dropped into it to the
// upload surface, the headless counterpart of dragging a file onto the page.
package dropzone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must stay quiet before it is handed over.
const DefaultSettle = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Settle is the quiet period after the last write to a file.
	Settle time.Duration
	Logger *zap.Logger
}

// Watcher reports files that appear in a directory once writes to them stop.
type Watcher struct {
	dir    string
	settle time.Duration
	logger *zap.Logger
}

// New creates a watcher for dir.
func New(dir string, opts Options) *Watcher {
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:    dir,
		settle: settle,
		logger: logger.Named("dropzone"),
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run watches until ctx is done, calling handle from the watching goroutine
// for every settled regular file. Hidden files are ignored.
func (w *Watcher) Run(ctx context.Context, handle func(path string)) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating drop directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop directory", zap.String("dir", w.dir))

	tick := w.settle / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !interesting(event) {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)

				info, err := os.Stat(path)
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				w.logger.Info("file dropped", zap.String("path", path), zap.Int64("bytes", info.Size()))
				handle(path)
			}
		}
	}
}

func interesting(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
