package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig controls the hot-reload watcher's sensitivity.
type WatchConfig struct {
	Enabled      bool
	CooldownTime time.Duration
}

// DefaultWatchConfig enables reload with a short cooldown to absorb
// editors that emit several write events per save.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{Enabled: true, CooldownTime: 500 * time.Millisecond}
}

// Watcher reloads AppConfig from disk whenever its backing file changes
// and hands the new value to an OnReload callback. Unlike a polling
// loop, it reacts to fsnotify.Write/Create events directly.
type Watcher struct {
	path    string
	config  WatchConfig
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	lastReload time.Time
	onReload   func(AppConfig)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates an fsnotify watcher for path. The watch on path
// itself is added by Start.
func NewWatcher(path string, cfg WatchConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	return &Watcher{
		path:    path,
		config:  cfg,
		watcher: fw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// OnReload registers the callback invoked with the freshly reloaded
// config after each qualifying file event. It must be set before Start.
func (w *Watcher) OnReload(fn func(AppConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start begins watching. It is a no-op if the watcher is disabled.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		return nil
	}
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	go w.run(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher and waits for the run
// loop to exit.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	select {
	case <-w.doneCh:
	case <-time.After(time.Second):
	}
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.reload()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.config.CooldownTime {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	cb := w.onReload
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil || cb == nil {
		return
	}
	cb(cfg)
}
