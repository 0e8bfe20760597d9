package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// settingsFile is the on-disk shape of the settings file watched by
// FileWatcher.
type settingsFile struct {
	ActiveProvider string            `yaml:"active_provider"`
	Settings       map[string]string `yaml:"settings"`
}

// LoadSettingsFile reads a settings YAML file into a fresh Snapshot.
func LoadSettingsFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %q: %w", path, err)
	}

	var sf settingsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %q: %w", path, err)
	}

	snap := &Snapshot{ActiveProvider: sf.ActiveProvider, Settings: sf.Settings}
	if snap.Settings == nil {
		snap.Settings = map[string]string{}
	}
	return snap, nil
}

// FileWatcher reloads the settings file into the store whenever it
// changes. Reloads are debounced so editors that write in several steps
// trigger one reload, and a reload failure keeps the previous snapshot.
type FileWatcher struct {
	path      string
	store     *Store
	overrides []EnvOverride
	debounce  time.Duration
	logger    *slog.Logger
}

// NewFileWatcher creates a watcher for the given settings file feeding the
// given store. Environment overrides are re-applied after every reload so
// they keep winning over file contents.
func NewFileWatcher(path string, store *Store, overrides []EnvOverride) *FileWatcher {
	return &FileWatcher{
		path:      path,
		store:     store,
		overrides: overrides,
		debounce:  100 * time.Millisecond,
		logger:    slog.Default().With("component", "runtime.watcher"),
	}
}

// Watch blocks until ctx is cancelled, reloading the settings file on
// change. The parent directory is watched rather than the file itself so
// atomic rename-style saves are observed.
func (w *FileWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("watching settings file", "path", w.path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "error", err)

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()
		}
	}
}

func (w *FileWatcher) reload() {
	snap, err := LoadSettingsFile(w.path)
	if err != nil {
		w.logger.Warn("settings reload failed, keeping previous snapshot", "error", err)
		return
	}

	// Preserve the active provider when the file does not set one.
	if snap.ActiveProvider == "" {
		snap.ActiveProvider = w.store.Load().ActiveProvider
	}

	w.store.Replace(WithEnvOverrides(snap, w.overrides))
	w.logger.Info("settings reloaded", "active_provider", w.store.Load().ActiveProvider)
}
