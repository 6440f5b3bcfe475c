package binfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileCallback is called for a settled file event
type FileCallback func(path string) error

// DirWatcher reports files appearing in, changing in, and leaving a
// directory tree. Rapid events on one path are debounced.
type DirWatcher struct {
	watcher            *fsnotify.Watcher
	root               string
	stabilityThreshold time.Duration
	onAdded            FileCallback
	onChanged          FileCallback
	onRemoved          FileCallback
	logger             zerolog.Logger
	done               chan struct{}
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
}

// DirWatcherConfig holds configuration for the watcher
type DirWatcherConfig struct {
	Root               string
	StabilityThreshold time.Duration
	OnAdded            FileCallback
	OnChanged          FileCallback
	OnRemoved          FileCallback
	Logger             zerolog.Logger
}

// NewDirWatcher creates a new directory watcher
func NewDirWatcher(config DirWatcherConfig) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 100 * time.Millisecond
	}

	return &DirWatcher{
		watcher:            watcher,
		root:               config.Root,
		stabilityThreshold: config.StabilityThreshold,
		onAdded:            config.OnAdded,
		onChanged:          config.OnChanged,
		onRemoved:          config.OnRemoved,
		logger:             config.Logger,
		done:               make(chan struct{}),
		debounceTimers:     make(map[string]*time.Timer),
	}, nil
}

// Start watches the directory and reports the files already present as added
func (w *DirWatcher) Start() error {
	if err := w.addDirectoryRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	for _, path := range w.existingFiles() {
		w.handle(w.onAdded, path, "added")
	}

	go w.eventLoop()

	w.logger.Info().
		Str("path", w.root).
		Msg("Directory watcher started")

	return nil
}

// Stop stops the watcher
func (w *DirWatcher) Stop() error {
	stopped := false
	w.stopOnce.Do(func() {
		close(w.done)
		stopped = true
	})
	if !stopped {
		return nil
	}

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Directory watcher stopped")
	return nil
}

func (w *DirWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			w.debounceEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *DirWatcher) debounceEvent(event fsnotify.Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[event.Name]; exists {
		timer.Stop()
	}

	eventCopy := event
	w.debounceTimers[event.Name] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, eventCopy.Name)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
			w.processEvent(eventCopy)
		}
	})
}

func (w *DirWatcher) processEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
			return
		}
		w.handle(w.onAdded, event.Name, "added")

	case event.Op&fsnotify.Write == fsnotify.Write:
		w.handle(w.onChanged, event.Name, "changed")

	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		// the new name of a rename arrives as its own create event
		w.handle(w.onRemoved, event.Name, "removed")
	}
}

func (w *DirWatcher) handle(cb FileCallback, path, what string) {
	if cb == nil {
		return
	}
	if err := cb(path); err != nil {
		w.logger.Debug().
			Err(err).
			Str("path", path).
			Msgf("Error handling file %s", what)
	}
}

func (w *DirWatcher) addDirectoryRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if w.ignored(walkPath) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(walkPath); err != nil {
			w.logger.Warn().
				Err(err).
				Str("path", walkPath).
				Msg("Failed to watch path")
		}
		return nil
	})
}

func (w *DirWatcher) existingFiles() []string {
	var files []string
	_ = filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if w.ignored(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

// ignored skips dotfiles and anything inside a dot directory below the root
func (w *DirWatcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
