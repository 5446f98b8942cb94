package scanner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called once the tree has been quiet for the debounce delay
// after one or more relevant changes.
type ChangeHandler func(paths []string)

// Watcher monitors a directory tree for video file changes
type Watcher struct {
	scanner       *Scanner
	logger        *slog.Logger
	root          string
	debounceDelay time.Duration
	handler       ChangeHandler
	watcher       *fsnotify.Watcher
	stopChan      chan struct{}
	doneChan      chan struct{}
	stopOnce      sync.Once

	// Debouncing state
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// WatcherConfig holds configuration for the file watcher
type WatcherConfig struct {
	Root          string
	Extensions    []string
	ExcludeDirs   []string
	DebounceDelay time.Duration // How long to wait after last event before firing
	Logger        *slog.Logger
}

// NewWatcher creates a new recursive directory watcher
func NewWatcher(cfg WatcherConfig, handler ChangeHandler) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		scanner:       NewWithExclusions(cfg.Extensions, cfg.ExcludeDirs).WithLogger(logger),
		logger:        logger,
		root:          cfg.Root,
		debounceDelay: cfg.DebounceDelay,
		handler:       handler,
		watcher:       fsWatcher,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
		pending:       make(map[string]struct{}),
	}, nil
}

// Start begins watching the root tree for changes
func (w *Watcher) Start() error {
	if err := w.addDirectory(w.root); err != nil {
		w.watcher.Close()
		return err
	}

	go w.processEvents()

	w.logger.Info("file watcher started",
		"root", w.root,
		"directories", len(w.watcher.WatchList()),
		"debounce_seconds", w.debounceDelay.Seconds(),
	)
	return nil
}

// Stop stops watching and drops any pending change notification
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		<-w.doneChan

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}

// Wait blocks until the watcher is stopped
func (w *Watcher) Wait() {
	<-w.doneChan
}

// addDirectory adds a directory and all its subdirectories to the watch list
func (w *Watcher) addDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}

	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip directories we can't access
		}
		if !info.IsDir() {
			return nil
		}
		if p != path && w.scanner.IsExcludedDir(p) {
			w.logger.Debug("skipping excluded directory", "path", p)
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("failed to add directory to watch", "path", p, "error", err)
		} else {
			w.logger.Debug("watching directory", "path", p)
		}
		return nil
	})
}

// processEvents handles fsnotify events
func (w *Watcher) processEvents() {
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleEvent filters a single fsnotify event down to the changes that
// affect the index
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.scanner.IsExcludedDir(path) {
				return
			}
			if err := w.addDirectory(path); err != nil {
				w.logger.Warn("failed to add new directory to watch", "path", path, "error", err)
			} else {
				w.logger.Info("new directory detected, now watching", "path", path)
			}
			w.schedule(path)
			return
		}
	}

	relevant := w.scanner.IsVideo(filepath.Base(path))
	if !relevant && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		// A removed directory is no longer stat-able; the watch list still knows it.
		relevant = w.isWatched(path)
	}
	if !relevant {
		return
	}

	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.logger.Debug("file event detected",
			"event", event.Op.String(),
			"path", path,
		)
		w.schedule(path)
	}
}

func (w *Watcher) isWatched(path string) bool {
	for _, p := range w.watcher.WatchList() {
		if p == path {
			return true
		}
	}
	return false
}

// schedule records a changed path and restarts the shared debounce timer
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDelay, w.fire)
}

// fire hands the accumulated changes to the handler
func (w *Watcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()
	slices.Sort(paths)

	select {
	case <-w.stopChan:
		return
	default:
	}

	if len(paths) == 0 {
		return
	}
	w.logger.Info("changes detected", "paths", len(paths))
	w.handler(paths)
}
