package roster

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the roster when its file changes. A reload that fails
// validation keeps the previous roster in place.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	running  bool
}

// NewWatcher creates a roster file watcher
func NewWatcher(path string, registry *Registry) *Watcher {
	return &Watcher{
		path:     path,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching the roster file
func (w *Watcher) Start() error {
	if w.running {
		return fmt.Errorf("watcher is already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops
	// a watch placed on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch roster directory: %w", err)
	}

	w.watcher = fw
	w.running = true
	go w.run()

	log.Info().Str("path", w.path).Msg("Roster watcher started")
	return nil
}

// Stop stops watching
func (w *Watcher) Stop() error {
	if !w.running {
		return fmt.Errorf("watcher is not running")
	}

	close(w.stopCh)
	w.running = false
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Roster watcher error")
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Roster reload rejected, keeping previous roster")
		return
	}

	w.registry.Swap(next)
	log.Info().Str("path", w.path).Int("agents", len(next.Agents())).Msg("Roster reloaded")
}
