package preload

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/observability"
)

// DefaultReloadDelay coalesces bursts of file events into one reload.
const DefaultReloadDelay = 250 * time.Millisecond

// Watch re-runs reload whenever a primary document under dir changes, until
// ctx is done. It is meant for development; production bootstraps once.
func Watch(ctx context.Context, dir string, delay time.Duration, reload func(context.Context), logger *zap.Logger) error {
	logger = observability.OrNop(logger)
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("preload: watcher: %w", err)
	}
	watched := map[string]bool{}
	for _, p := range []string{DevicesPage, AggregatePath} {
		full := filepath.Join(dir, filepath.FromSlash(p))
		watched[filepath.Clean(full)] = true
		// Watch directories so atomic renames are seen.
		if err := w.Add(filepath.Dir(full)); err != nil {
			_ = w.Close()
			return fmt.Errorf("preload: watch %s: %w", filepath.Dir(full), err)
		}
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
					continue
				}
				logger.Debug("preload source changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(delay, func() {
					if ctx.Err() == nil {
						reload(ctx)
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("preload watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
