package dev

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is a settled change to one source file.
type Change struct {
	// Path is the absolute path of the file.
	Path string

	// Removed is set when the file no longer exists once the change
	// settled.
	Removed bool
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Root is the directory watched recursively.
	Root string

	// Ignore lists names, path segments or globs to skip.
	Ignore []string

	// Exclude lists absolute directories that are never watched, such as
	// an output tree nested in the source tree.
	Exclude []string

	// Debounce is how long a path must stay quiet before it is reported.
	Debounce time.Duration

	Logger *slog.Logger
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	".DS_Store",
	"*.tmp",
	"*.swp",
	"*~",
}

// Watcher reports batches of settled changes under a directory tree.
type Watcher struct {
	config   WatcherConfig
	fsw      *fsnotify.Watcher
	log      *slog.Logger
	mu       sync.Mutex
	onChange func([]Change)
	pending  map[string]time.Time
	running  bool
	closed   bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a new file watcher. Start must be called to begin
// receiving events and Stop to release it.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Watcher{
		config:  config,
		fsw:     fsw,
		log:     log,
		pending: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// OnChange sets the callback for settled changes. It is called from the
// watcher goroutine, one batch at a time.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start watches Root and every directory below it. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.closed {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.config.Root, false); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	running := w.running
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	if running {
		<-w.doneCh
	}
	if err := w.fsw.Close(); err != nil {
		w.log.Error("closing watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.config.Debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent records one filesystem event for debouncing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if w.skip(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				w.log.Warn("watching new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	w.log.Debug("changed", "path", event.Name, "op", event.Op.String())
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush reports the paths that have been quiet for the debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for p, t := range w.pending {
		if now.Sub(t) >= w.config.Debounce {
			settled = append(settled, p)
			delete(w.pending, p)
		}
	}
	callback := w.onChange
	w.mu.Unlock()

	if len(settled) == 0 || callback == nil {
		return
	}
	slices.Sort(settled)

	changes := make([]Change, 0, len(settled))
	for _, p := range settled {
		_, err := os.Stat(p)
		changes = append(changes, Change{Path: p, Removed: os.IsNotExist(err)})
	}
	callback(changes)
}

// addTree watches dir and its subdirectories. With enqueue set, files
// already inside are reported as changes, which covers directories that
// were moved in whole.
func (w *Watcher) addTree(dir string, enqueue bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if p != dir && w.skip(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if enqueue {
				w.mu.Lock()
				w.pending[p] = time.Now()
				w.mu.Unlock()
			}
			return nil
		}
		return w.fsw.Add(p)
	})
}

// skip reports whether a path is excluded or matches an ignore pattern.
func (w *Watcher) skip(p string) bool {
	for _, dir := range w.config.Exclude {
		if isWithinDir(p, dir) {
			return true
		}
	}
	return w.shouldIgnore(p)
}

// shouldIgnore checks if a path should be ignored.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if name == pattern {
			return true
		}

		hasPathSep := strings.Contains(pattern, "/")
		if strings.ContainsAny(pattern, "*?[") {
			var matched bool
			if hasPathSep {
				matched, _ = path.Match(pattern, normalized)
			} else {
				matched, _ = filepath.Match(pattern, name)
			}
			if matched {
				return true
			}
			continue
		}

		if hasPathSep {
			if pathMatchesSegments(normalized, pattern) {
				return true
			}
			continue
		}
		if slices.Contains(splitPathSegments(normalized), pattern) {
			return true
		}
	}
	return false
}

func pathMatchesSegments(p, pattern string) bool {
	pathParts := splitPathSegments(p)
	patternParts := splitPathSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}
	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		if slices.Equal(pathParts[i:i+len(patternParts)], patternParts) {
			return true
		}
	}
	return false
}

func splitPathSegments(p string) []string {
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

// isWithinDir reports whether path is dir or lies inside it.
func isWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
