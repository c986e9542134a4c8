package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the Holder's config whenever its file changes on disk, then
// invokes onReload with the fresh snapshot. A reload that fails to parse or
// validate is logged and discarded; the previous config stays active.
//
// The watch is on the containing directory rather than the file itself
// because most editors and config management tools replace files via
// rename, which would otherwise drop the watch.
//
// Runs until ctx is canceled. Returns immediately with nil if the Holder
// has no config file path (defaults-only setup).
func Watch(ctx context.Context, holder *Holder, logger *slog.Logger, onReload func(*Config)) error {
	path := holder.Path()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	logger.Debug("config reload watcher started", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			cfg, loadErr := Load(path)
			if loadErr != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("error", loadErr.Error()),
				)

				continue
			}

			holder.Update(cfg)
			logger.Info("config reloaded", slog.String("path", path))

			if onReload != nil {
				onReload(cfg)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
