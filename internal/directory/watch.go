package directory

import (
	"context"
	"path/filepath"

	"github.com/davisfield/switchboard/internal/config"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the directory whenever the config file at path changes.
// It blocks until ctx is cancelled. Reload failures keep the previous
// profiles and are logged, never fatal.
func (d *Directory) Watch(ctx context.Context, path string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the parent directory: editors replace files on save, which
	// drops a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				log.Warn("directory reload skipped", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := d.Reload(cfg.Agents); err != nil {
				log.Warn("directory reload rejected", zap.Error(err))
				continue
			}
			log.Info("directory reloaded", zap.Int("agents", len(cfg.Agents)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("directory watch error", zap.Error(err))
		}
	}
}
