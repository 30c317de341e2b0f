package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reloader reloads one tool by name.
type Reloader interface {
	ReloadTool(ctx context.Context, name string) error
}

// DefaultDebounce is the quiet period before a changed tool is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads tools whose directory under the tools directory changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	reloader Reloader
	debounce time.Duration
	logger   zerolog.Logger

	done           chan struct{}
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
	stopOnce       sync.Once
}

// NewWatcher creates a watcher over dir. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, reloader Reloader, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:        watcher,
		dir:            filepath.Clean(dir),
		reloader:       reloader,
		debounce:       debounce,
		logger:         logger.With().Str("component", "tool-watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}, nil
}

// Start watches the tools directory and each tool directory inside it.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch tools directory: %w", err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read tools directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && !ignored(entry.Name()) {
			w.addToolDir(filepath.Join(w.dir, entry.Name()))
		}
	}

	go w.eventLoop()

	w.logger.Info().Str("dir", w.dir).Msg("Tool watcher started")
	return nil
}

// Stop stops the watcher and drops pending reloads.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Tool watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name, ok := w.toolName(event.Name)
	if !ok {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create && filepath.Dir(event.Name) == w.dir {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addToolDir(event.Name)
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.debounceReload(name)
}

// toolName maps a path inside the tools directory to the tool it belongs to.
func (w *Watcher) toolName(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	name := strings.Split(rel, string(filepath.Separator))[0]
	if ignored(name) || ignored(filepath.Base(path)) {
		return "", false
	}
	return name, true
}

func (w *Watcher) debounceReload(name string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[name]; exists {
		timer.Stop()
	}

	w.debounceTimers[name] = time.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, name)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		if err := w.reloader.ReloadTool(context.Background(), name); err != nil {
			w.logger.Error().Err(err).Str("tool", name).Msg("Failed to reload changed tool")
			return
		}
		w.logger.Info().Str("tool", name).Msg("Reloaded changed tool")
	})
}

func (w *Watcher) addToolDir(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch tool directory")
	}
}

// ignored skips dotfiles and editor swap files.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp")
}
