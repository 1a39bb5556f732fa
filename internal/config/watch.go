package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"sigserver/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 100 * time.Millisecond

// WatchOptions configures Watch. OnChange receives every settings file that
// decodes cleanly; invalid edits are logged and skipped.
type WatchOptions struct {
	Path     string
	Logger   *logging.Logger
	Debounce time.Duration
	OnChange func(Settings)
}

// Watch reloads the settings file whenever it changes until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// keep triggering reloads.
func Watch(ctx context.Context, options WatchOptions) error {
	if options.Path == "" {
		return errors.New("watch path is required")
	}
	if options.OnChange == nil {
		return errors.New("watch callback is required")
	}
	path, err := filepath.Abs(options.Path)
	if err != nil {
		return err
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := notifier.Add(filepath.Dir(path)); err != nil {
		notifier.Close()
		return err
	}

	reloader := &reloader{
		path:     path,
		logger:   options.Logger,
		onChange: options.OnChange,
		debounce: debounce,
	}
	go reloader.run(ctx, notifier)
	return nil
}

type reloader struct {
	path     string
	logger   *logging.Logger
	onChange func(Settings)
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (r *reloader) run(ctx context.Context, notifier *fsnotify.Watcher) {
	defer func() {
		r.mu.Lock()
		if r.timer != nil {
			r.timer.Stop()
		}
		r.mu.Unlock()
		_ = notifier.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-notifier.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.schedule()
		case err, ok := <-notifier.Errors:
			if !ok {
				return
			}
			r.logger.Warn("config watch error", map[string]string{
				"path":  r.path,
				"error": err.Error(),
			})
		}
	}
}

func (r *reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, r.reload)
		return
	}
	r.timer.Reset(r.debounce)
}

func (r *reloader) reload() {
	settings, err := Load(r.path)
	if err != nil {
		r.logger.Warn("config reload failed", map[string]string{
			"path":  r.path,
			"error": err.Error(),
		})
		return
	}
	r.logger.Info("config reloaded", map[string]string{
		"path": r.path,
	})
	r.onChange(settings)
}
