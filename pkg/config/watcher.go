package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/appdock/appdock/pkg/telemetry"
)

// reloadDelay debounces editor write bursts into a single reload.
const reloadDelay = 500 * time.Millisecond

// Watch reloads the configuration file whenever it changes and hands the
// fresh declaration to reloadFn. A file that fails to load or validate is
// logged and skipped; the previous configuration stays in effect. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, log *telemetry.Logger, reloadFn func(*AppConfig) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	if log == nil {
		log = telemetry.Nop()
	}
	log.WithField("path", path).Info("watching configuration")

	var reloadTimer *time.Timer
	var reloadC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(reloadDelay)
				reloadC = reloadTimer.C
			} else {
				reloadTimer.Reset(reloadDelay)
			}

		case <-reloadC:
			reloadTimer = nil
			reloadC = nil
			cfg, err := Load(path)
			if err != nil {
				log.WithError(err).Warn("configuration reload failed, keeping previous")
				continue
			}
			if err := reloadFn(cfg); err != nil {
				log.WithError(err).Warn("configuration reload rejected")
				continue
			}
			log.WithField("path", path).Info("configuration reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("configuration watcher error")
		}
	}
}
