package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file into h whenever it changes, until ctx is
// done. The parent directory is watched rather than the file, so editors
// that save by rename are picked up. A file that fails to load or validate
// is logged and the previous config stays in effect. onReload, if set,
// runs after every successful reload.
func Watch(ctx context.Context, h *Holder, logger *slog.Logger, onReload func(*Config)) error {
	path := h.Path()
	if path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			reload(h, logger, onReload)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func reload(h *Holder, logger *slog.Logger, onReload func(*Config)) {
	cfg, err := LoadOrDefault(h.Path())
	if err != nil {
		logger.Warn("config reload failed, keeping previous config",
			slog.String("path", h.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	h.Update(cfg)
	logger.Info("config reloaded", slog.String("path", h.Path()))

	if onReload != nil {
		onReload(cfg)
	}
}
