package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events a single editor save produces.
const settleDelay = 250 * time.Millisecond

// Watch monitors path for changes and calls onChange with the newly loaded
// Config after each save. It runs until ctx is cancelled.
//
// If a reload fails validation the error is logged and onChange is not
// called; the caller keeps running with its previous config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				// Atomic save replaced the inode; watch the new file.
				_ = watcher.Add(path)
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			settle = time.After(settleDelay)

		case <-settle:
			settle = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload rejected, keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path, "channels", len(cfg.Channels))
			onChange(cfg)
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
