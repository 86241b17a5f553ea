package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tinyland-inc/autoreact/pkg/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when its file changes on disk.
type Watcher struct {
	store    *Store
	debounce time.Duration
	onReload func(count int)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(store *Store) *Watcher {
	return &Watcher{store: store, debounce: defaultDebounce}
}

// SetDebounce overrides the delay between the last file event and the reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// OnReload registers a callback invoked after every successful reload.
func (w *Watcher) OnReload(fn func(count int)) {
	w.onReload = fn
}

// Start watches the store's directory until ctx is done. The directory is
// watched rather than the file because saves replace the file by rename.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Wait blocks until the watch loop has exited.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	defer w.watcher.Close()
	defer w.stopTimer()

	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.WarnCF("rules", "Rule watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.store.Reload(); err != nil {
			logger.ErrorCF("rules", "Rule reload failed, keeping previous rules", map[string]any{
				"error": err.Error(),
			})
			return
		}
		if w.onReload != nil {
			w.onReload(w.store.Len())
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
