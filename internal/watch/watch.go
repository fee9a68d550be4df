package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/internal/stratum"
	"github.com/koskimas/strata/pkg/model"
	"go.uber.org/zap"
)

// Watcher reloads stratum files into the models of a collection when they
// change on disk. Reloads run on the watcher goroutine while holding the
// model lock, so other goroutines must access the models through Do.
type Watcher struct {
	mu     sync.Mutex
	models *model.Collection

	watcher *fsnotify.Watcher
	files   map[string]stratum.File
	log     *zap.Logger

	stateMu     sync.Mutex
	debounce    map[string]time.Time
	debounceDur time.Duration
	tick        time.Duration
	running     bool
	stopped     bool
	stopCh      chan struct{}
	doneCh      chan struct{}

	onReload func(stratum.File, error)
}

type Option func(*Watcher)

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.log = logger
		}
	}
}

// WithDebounce sets how long a file must stay unchanged before it is
// reloaded.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceDur = d
		w.tick = d / 5
		if w.tick <= 0 {
			w.tick = time.Millisecond
		}
	}
}

// OnReload sets a function called after every reload attempt. It runs while
// the model lock is held.
func OnReload(fn func(stratum.File, error)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

func New(models *model.Collection, files []stratum.File, opts ...Option) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		models:      models,
		watcher:     watcher,
		files:       make(map[string]stratum.File, len(files)),
		log:         zap.NewNop(),
		debounce:    make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		tick:        100 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	for _, o := range opts {
		o(w)
	}

	for _, f := range files {
		path, err := filepath.Abs(f.Path)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf(`failed to resolve stratum file "%s": %w`, f.Path, err)
		}

		if _, ok := models.Get(f.Model); !ok {
			watcher.Close()
			return nil, fmt.Errorf(`unknown model "%s" for stratum file "%s"`, f.Model, f.Path)
		}

		f.Path = path
		w.files[path] = f
	}

	return w, nil
}

// Start watches the directories of the stratum files. Directories are
// watched instead of files so that editors replacing files are noticed.
// Start doesn't block. Stop must be called also when Start fails.
func (w *Watcher) Start(ctx context.Context) error {
	w.stateMu.Lock()
	if w.stopped {
		w.stateMu.Unlock()
		return fmt.Errorf("watcher is stopped")
	}
	if w.running {
		w.stateMu.Unlock()
		return nil
	}
	w.stateMu.Unlock()

	dirs := make(map[string]bool)
	for path := range w.files {
		dirs[filepath.Dir(path)] = true
	}

	for _, dir := range maps.SortedKeys(dirs) {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf(`failed to watch directory "%s": %w`, dir, err)
		}

		w.log.Debug("watching directory", zap.String("dir", dir))
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	// Stop may have run while the directories were added.
	if w.stopped {
		return fmt.Errorf("watcher is stopped")
	}
	if w.running {
		return nil
	}

	w.running = true
	go w.run(ctx)

	return nil
}

// Stop stops watching and waits for the watcher goroutine to exit. A
// stopped watcher can't be started again.
func (w *Watcher) Stop() {
	w.stateMu.Lock()
	if w.stopped {
		w.stateMu.Unlock()
		return
	}
	running := w.running
	w.running = false
	w.stopped = true
	w.stateMu.Unlock()

	close(w.stopCh)

	if err := w.watcher.Close(); err != nil {
		w.log.Error("failed to close file watcher", zap.Error(err))
	}

	if running {
		<-w.doneCh
	}

	w.log.Debug("watcher stopped")
}

// Do runs `fn` holding the model lock.
func (w *Watcher) Do(fn func(*model.Collection) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return fn(w.models)
}

// Reload loads the stratum file at `path` into its model right away.
func (w *Watcher) Reload(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	f, ok := w.files[abs]
	if !ok {
		return fmt.Errorf(`"%s" is not a watched stratum file`, path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.models.Get(f.Model)
	if !ok {
		err = fmt.Errorf(`model "%s" was removed`, f.Model)
	} else {
		err = stratum.Load(m, f)
	}

	if err != nil {
		w.log.Error("failed to reload stratum file", zap.Stringer("file", f), zap.Error(err))
	} else {
		w.log.Info("reloaded stratum file", zap.Stringer("file", f))
	}

	if w.onReload != nil {
		w.onReload(f, err)
	}

	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("file watcher error", zap.Error(err))

		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	if _, ok := w.files[path]; !ok {
		return
	}

	w.log.Debug("stratum file changed", zap.String("path", path), zap.Stringer("op", event.Op))

	w.stateMu.Lock()
	w.debounce[path] = time.Now()
	w.stateMu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.stateMu.Lock()
	now := time.Now()
	settled := make([]string, 0)

	for path, t := range w.debounce {
		if now.Sub(t) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounce, path)
		}
	}
	w.stateMu.Unlock()

	for _, path := range settled {
		// Errors are logged and reported to OnReload.
		_ = w.Reload(path)
	}
}
