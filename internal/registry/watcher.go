package registry

import (
	"path/filepath"

	"grantor/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the provider registry when the providers.yaml overlay
// changes on disk. Reloads swap the registry snapshot atomically; in-flight
// sessions keep the descriptor they started with.
type Watcher struct {
	registry   *Registry
	configPath string
	fsWatcher  *fsnotify.Watcher
	done       chan struct{}
}

// NewWatcher starts watching the config directory for overlay changes.
func NewWatcher(registry *Registry, configPath string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save and
	// a file watch would be lost on the first rename.
	if err := fsWatcher.Add(configPath); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		registry:   registry,
		configPath: configPath,
		fsWatcher:  fsWatcher,
		done:       make(chan struct{}),
	}
	go w.loop()

	logging.Debug("Registry", "Watching %s for provider config changes", configPath)
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != providersFileName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Registry", "Config watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	descriptors, err := loadDescriptors(w.configPath)
	if err != nil {
		// Keep the last good snapshot on a broken overlay.
		logging.Warn("Registry", "Provider config reload failed, keeping previous registry: %v", err)
		return
	}
	w.registry.Replace(descriptors)
	logging.Info("Registry", "Provider registry reloaded (%d providers)", len(w.registry.All()))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
