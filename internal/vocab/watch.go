package vocab

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the vocabulary file whenever it changes and hands the new
// corrector to onReload. Watching is best-effort: if the watcher cannot be
// created the current corrector simply stays in effect.
func Watch(ctx context.Context, path string, log *slog.Logger, onReload func(*Corrector)) {
	if strings.TrimSpace(path) == "" || onReload == nil {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("vocabulary watcher unavailable", slog.String("error", err.Error()))
		return
	}

	// Watch the directory: editors replace files, which drops a file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Warn("vocabulary watch failed", slog.String("path", path), slog.String("error", err.Error()))
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				corrector, err := Load(path)
				if err != nil {
					log.Warn("vocabulary reload failed", slog.String("path", path), slog.String("error", err.Error()))
					continue
				}
				log.Info("vocabulary reloaded", slog.String("path", path))
				onReload(corrector)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("vocabulary watcher error", slog.String("error", err.Error()))
			}
		}
	}()
}
