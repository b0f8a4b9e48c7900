package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a rule file into a Store when it changes on disk.
// A file that fails to compile is logged and the current set stays in place.
type Watcher struct {
	path     string
	store    *Store
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	reloaded chan string
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// Watch starts watching path. The directory is watched rather than the file
// so editors that replace the file atomically are still seen.
func Watch(ctx context.Context, path string, store *Store, logger *slog.Logger, opts ...WatchOption) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rule watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		logger:   logger,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		reloaded: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop(ctx)
	return w, nil
}

// Reloaded delivers the version of each newly published set.
func (w *Watcher) Reloaded() <-chan string {
	return w.reloaded
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	set, err := Load(w.path)
	if err != nil {
		w.logger.Error("rule reload rejected", "path", w.path, "error", err)
		return
	}
	if err := w.store.Publish(set); err != nil {
		w.logger.Warn("rule reload skipped", "path", w.path, "error", err)
		return
	}
	w.logger.Info("rule set reloaded", "version", set.Version, "rules", len(set.rules))
	select {
	case w.reloaded <- set.Version:
	default:
	}
}
