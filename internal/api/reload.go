package api

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ppiankov/taskgate/internal/metrics"
)

// DefaultDebounce is how long the reloader waits after the last change.
const DefaultDebounce = 500 * time.Millisecond

// Reloader watches the deny-rules file and calls reload after it changes.
// The parent directory is watched so editors that replace the file by
// rename are seen too.
type Reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	reload   func() error
	log      *zap.Logger
	metrics  *metrics.Metrics
	Debounce time.Duration
}

// NewReloader creates a watcher for path.
func NewReloader(path string, reload func() error, log *zap.Logger, m *metrics.Metrics) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("no deny-rules file to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Reloader{
		watcher:  watcher,
		path:     abs,
		reload:   reload,
		log:      log,
		metrics:  m,
		Debounce: DefaultDebounce,
	}, nil
}

// Run handles file events until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.Debounce, r.fire)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) fire() {
	err := r.reload()
	r.metrics.ObserveReload(err)
	if err != nil {
		r.log.Error("hot-reload failed; keeping previous deny rules", zap.String("path", r.path), zap.Error(err))
		return
	}
	r.log.Info("hot-reload: deny rules reloaded", zap.String("path", r.path))
}
