package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docker/deskpilot/pkg/environment"
)

const debounceDelay = 500 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	env     environment.Provider
	delay   time.Duration
}

// NewWatcher watches the directory holding path, which survives editors
// that replace the file instead of writing it in place.
func NewWatcher(path string, env environment.Provider) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	slog.Debug("Started watching config file", "path", absPath)

	return &Watcher{
		watcher: fw,
		path:    absPath,
		env:     env,
		delay:   debounceDelay,
	}, nil
}

// Run calls onChange with each successfully reloaded configuration until
// ctx is done. Bursts of writes are coalesced; a file that fails to load or
// validate is logged and ignored.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			eventPath, err := filepath.Abs(event.Name)
			if err != nil || eventPath != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("Config file changed", "path", event.Name, "op", event.Op)

			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			cfg, err := Load(ctx, w.path, w.env)
			if err != nil {
				slog.Warn("Ignoring invalid config change", "path", w.path, "error", err)
				continue
			}
			slog.Info("Config reloaded", "path", w.path)
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}
