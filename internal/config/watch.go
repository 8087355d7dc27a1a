package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Applier receives the reloadable settings.
type Applier interface {
	SetFilter(substr string)
	SetCapacity(capacity int)
}

// Watcher reloads the config file on change and applies it to a running
// session.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	target   Applier
	logger   *zap.SugaredLogger
	debounce time.Duration
}

// NewWatcher watches path. The file must exist.
func NewWatcher(path string, target Applier, logger *zap.SugaredLogger) (*Watcher, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot watch config: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Watcher{
		watcher:  watcher,
		path:     path,
		target:   target,
		logger:   logger,
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce overrides DefaultDebounce. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run watches for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("config watcher error", "error", err)
		}
	}
}

// reload keeps the previous settings when the new file does not load.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Errorw("config reload failed", "path", w.path, "error", err)
		return
	}
	w.target.SetFilter(cfg.Filter)
	w.target.SetCapacity(cfg.LogCapacity)
	w.logger.Infow("config reloaded", "path", w.path, "filter", cfg.Filter, "log_capacity", cfg.LogCapacity)
}
