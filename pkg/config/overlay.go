package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// overlayFile is the subset of configuration that may be supplied via a
// YAML file instead of the environment. It exists so rotating push
// credentials does not require a process restart.
type overlayFile struct {
	Push struct {
		VAPIDPublicKey  string `yaml:"vapid_public_key"`
		VAPIDPrivateKey string `yaml:"vapid_private_key"`
		Subject         string `yaml:"subject"`
	} `yaml:"push"`
}

// ApplyOverlay reads the YAML overlay file and applies the non-empty
// fields on top of the current configuration.
func (c *Config) ApplyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read overlay file: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse overlay file: %w", err)
	}

	if overlay.Push.VAPIDPublicKey != "" {
		c.Push.VAPIDPublicKey = overlay.Push.VAPIDPublicKey
	}
	if overlay.Push.VAPIDPrivateKey != "" {
		c.Push.VAPIDPrivateKey = overlay.Push.VAPIDPrivateKey
	}
	if overlay.Push.Subject != "" {
		c.Push.Subject = overlay.Push.Subject
	}

	return nil
}

// OverlayWatcher watches the overlay file and invokes a callback with the
// refreshed push configuration whenever the file changes.
type OverlayWatcher struct {
	path    string
	base    PushConfig
	logger  *observability.Logger
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	onChange func(PushConfig)
}

// NewOverlayWatcher creates a watcher for the given overlay file. The base
// push configuration is what the overlay fields layer on top of.
func NewOverlayWatcher(path string, base PushConfig, logger *observability.Logger, onChange func(PushConfig)) (*OverlayWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory rather than the file itself so atomic
	// rename-based writes (kubernetes configmap updates, editors) are
	// still observed.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch overlay directory: %w", err)
	}

	return &OverlayWatcher{
		path:     path,
		base:     base,
		logger:   logger,
		watcher:  w,
		onChange: onChange,
	}, nil
}

// Run processes file events until the context is cancelled.
func (ow *OverlayWatcher) Run(ctx context.Context) {
	defer ow.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ow.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(ow.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			ow.reload()
		case err, ok := <-ow.watcher.Errors:
			if !ok {
				return
			}
			ow.logger.WithError(err).Warn("overlay watcher error")
		}
	}
}

func (ow *OverlayWatcher) reload() {
	cfg := Config{Push: ow.base}
	if err := cfg.ApplyOverlay(ow.path); err != nil {
		ow.logger.WithError(err).WithField("path", ow.path).Error("failed to reload config overlay")
		return
	}

	if (cfg.Push.VAPIDPublicKey == "") != (cfg.Push.VAPIDPrivateKey == "") {
		ow.logger.WithField("path", ow.path).Error("overlay has mismatched VAPID key pair, keeping previous credentials")
		return
	}

	ow.logger.WithField("path", ow.path).Info("reloaded config overlay")

	ow.mu.Lock()
	cb := ow.onChange
	ow.mu.Unlock()
	if cb != nil {
		cb(cfg.Push)
	}
}
