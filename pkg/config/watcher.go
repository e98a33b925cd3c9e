package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tourwise/pulse/pkg/logging"
)

// ReloadFunc receives the freshly loaded configuration after a file change.
type ReloadFunc func(*Config)

// Watcher reloads the config file when it changes on disk. A reload that
// fails to parse or validate keeps the previous configuration in effect.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  ReloadFunc
	logger  *logging.StructuredLogger
	done    chan struct{}
	stop    sync.Once
}

// NewWatcher creates a config file watcher. The parent directory is watched
// rather than the file itself so atomic rename-style rewrites are observed.
func NewWatcher(path string, logger *logging.StructuredLogger, onLoad ReloadFunc) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		watcher: fsw,
		onLoad:  onLoad,
		logger:  logger.WithComponent("config_watcher"),
		done:    make(chan struct{}),
	}, nil
}

// Start consumes filesystem events until the context ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watch error", "error", err.Error())
			}
		}
	}()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.ErrorErr("config reload rejected, keeping previous configuration", err,
			"path", w.path)
		return
	}
	w.logger.Info("configuration reloaded", "path", w.path)
	w.onLoad(cfg)
}

// Stop ends the watch loop and releases the filesystem watcher. Repeated
// calls are no-ops.
func (w *Watcher) Stop() error {
	var err error
	w.stop.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
