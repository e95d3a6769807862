package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meshlb/lb/errors"
	"github.com/meshlb/lb/logger"
)

// ReloadCallback is invoked with the freshly reloaded StartConfig whenever
// the watched file changes.
type ReloadCallback func(*StartConfig) error

// FileWatcher watches the LB's TOML config file for changes and reloads
// StartConfig on the operator's next edit, debounced so a burst of writes
// from an editor triggers one reload. This covers the file-backed startup
// values only — the admin-mutable Runtime record is never touched by it;
// the admin channel owns that.
type FileWatcher struct {
	path      string
	watcher   *fsnotify.Watcher
	mu        sync.Mutex
	callbacks []ReloadCallback
	debounce  time.Duration
	timer     *time.Timer
	done      chan struct{}
}

// NewFileWatcher creates a watcher for the config file at path.
func NewFileWatcher(path string) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", path)
	}
	return &FileWatcher{
		path:     path,
		watcher:  w,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// OnReload registers a callback run after a debounced file change.
func (w *FileWatcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching in the background. Call Close to stop.
func (w *FileWatcher) Start() {
	go w.loop()
}

func (w *FileWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("config watcher error", logger.FieldError, err)
		case <-w.done:
			return
		}
	}
}

func (w *FileWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.runReload)
}

func (w *FileWatcher) runReload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warnw("config reload failed", logger.FieldError, err)
		return
	}
	w.mu.Lock()
	callbacks := append([]ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()
	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger.Warnw("config reload callback failed", logger.FieldError, err)
		}
	}
}

// Close stops the watcher.
func (w *FileWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
