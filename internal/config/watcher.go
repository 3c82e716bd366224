package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher monitors the configuration file and invokes a reload callback when
// it changes. Editors often emit several events per save, so events are
// debounced before the file is re-read.
type Watcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	reload     func(*Config)
}

// NewWatcher creates a watcher for the given configuration file. The reload
// callback receives the freshly parsed configuration; it is never called with
// a nil config.
func NewWatcher(configPath string, reload func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath: configPath,
		watcher:    fsWatcher,
		reload:     reload,
	}, nil
}

// Start begins watching the configuration file's directory until the context
// is cancelled. Watching the directory instead of the file survives
// rename-based saves.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	const debounce = 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, w.fire)
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) matches(name string) bool {
	return strings.EqualFold(filepath.Clean(name), filepath.Clean(w.configPath))
}

func (w *Watcher) fire() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		log.WithError(err).Error("failed to reload config, keeping previous settings")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reload != nil {
		w.reload(cfg)
	}
}
