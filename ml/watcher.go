package ml

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch flags the registry as stale when anything under its artifact
// directory changes on disk. Loaded models are never swapped at runtime;
// the flag only surfaces through the info endpoint so operators know a
// restart is needed.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// fsnotify does not recurse, so register every subdirectory.
	err = filepath.Walk(r.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
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
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !r.Stale() {
						zap.L().Warn("model artifacts changed on disk, restart to reload",
							zap.String("path", event.Name))
					}
					r.MarkStale()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Warn("artifact watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
