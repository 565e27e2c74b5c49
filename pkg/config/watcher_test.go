package config

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

const watchConfigV1 = `
name: shop
resources:
  - name: pg
    kind: container
`

const watchConfigV2 = `
name: shop
resources:
  - name: pg
    kind: container
  - name: api
    kind: container
`

const watchConfigBroken = `
name: shop
resources:
  - name: pg
    kind: lambda
`

func startWatch(t *testing.T, path string) (chan *AppConfig, chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan *AppConfig, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(cfg *AppConfig) error {
			reloads <- cfg
			return nil
		})
	}()
	// Give the watcher time to register before the first write.
	time.Sleep(100 * time.Millisecond)
	return reloads, done, cancel
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Expected no error writing config, got: %v", err)
	}
}

func awaitReload(t *testing.T, reloads chan *AppConfig) *AppConfig {
	t.Helper()
	select {
	case cfg := <-reloads:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for configuration reload")
		return nil
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, watchConfigV1)
	reloads, done, cancel := startWatch(t, path)
	defer cancel()

	rewrite(t, path, watchConfigV2)

	cfg := awaitReload(t, reloads)
	if len(cfg.Resources) != 2 {
		t.Errorf("Expected reloaded config with 2 resources, got %d", len(cfg.Resources))
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled after cancel, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for watch to stop")
	}
}

func TestWatchKeepsPreviousOnBadConfig(t *testing.T) {
	path := writeConfig(t, watchConfigV1)
	reloads, _, cancel := startWatch(t, path)
	defer cancel()

	rewrite(t, path, watchConfigBroken)

	// The broken write must be skipped, not delivered.
	select {
	case cfg := <-reloads:
		t.Fatalf("Expected no reload for invalid config, got %q", cfg.Name)
	case <-time.After(1500 * time.Millisecond):
	}

	// The watcher stays alive and picks up the next good write.
	rewrite(t, path, watchConfigV2)
	cfg := awaitReload(t, reloads)
	if len(cfg.Resources) != 2 {
		t.Errorf("Expected recovery with 2 resources, got %d", len(cfg.Resources))
	}
}

func TestWatchRejectedReloadDoesNotStopWatching(t *testing.T) {
	path := writeConfig(t, watchConfigV1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var names []string
	seen := make(chan string, 4)
	go func() {
		_ = Watch(ctx, path, nil, func(cfg *AppConfig) error {
			seen <- cfg.Name
			if len(cfg.Resources) == 1 {
				return errors.New("single resource rejected")
			}
			return nil
		})
	}()
	time.Sleep(100 * time.Millisecond)

	rewrite(t, path, watchConfigV1)
	rewriteAwait := func() {
		select {
		case name := <-seen:
			names = append(names, name)
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for reload attempt")
		}
	}
	rewriteAwait()

	rewrite(t, path, watchConfigV2)
	rewriteAwait()
	if len(names) != 2 {
		t.Errorf("Expected the watcher to survive a rejected reload, got %v", names)
	}
}
