package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the configuration file and hot-reloads it, primarily for
// development iteration (spec §9 "global mutable state: none required" is
// honored — Watcher owns its own state, not a package-level global).
type Watcher struct {
	mu        sync.RWMutex
	path      string
	current   *Config
	callbacks []func(*Config)
	logger    *zap.Logger
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
}

// NewWatcher starts watching path for changes. Hot reload is only armed
// outside Production, matching the teacher's development-only behavior.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		path:    path,
		current: initial,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	if initial.Environment == Production {
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsWatcher = fsw
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFile(w.path)
			if err != nil {
				if w.logger != nil {
					w.logger.Warn("config reload failed", zap.Error(err))
				}
				continue
			}
			w.mu.Lock()
			w.current = cfg
			callbacks := append([]func(*Config){}, w.callbacks...)
			w.mu.Unlock()
			for _, cb := range callbacks {
				cb(cfg)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watcher error", zap.Error(err))
			}
		case <-w.stopCh:
			return
		}
	}
}

// OnChange registers a callback invoked after a successful reload.
func (w *Watcher) OnChange(cb func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
