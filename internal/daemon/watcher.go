// Package daemon reruns the sync pipeline whenever the source CSV changes.
//
// ordersync watch uses this to keep a store current while an ERP keeps
// re-exporting the same file. Each change triggers a full pipeline run;
// this is repeated whole-batch reconciliation, not streaming ingestion.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last write event
// before resyncing. ERP exports are written in bursts; debouncing avoids
// syncing a half-written file.
const DefaultDebounce = 500 * time.Millisecond

// Watcher triggers a resync callback when the watched CSV file changes.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *log.Logger
	resync   func(context.Context) error
}

// New creates a Watcher for the CSV at path.
//
// resync is invoked after each debounced change; its errors are logged and
// the watcher keeps running. If logger is nil, a default logger writing to
// stderr is used.
func New(path string, resync func(context.Context) error, logger *log.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve CSV path: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	return &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		logger:   logger,
		resync:   resync,
	}, nil
}

// SetDebounce overrides the debounce interval. Must be called before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run watches until ctx is canceled.
//
// The parent directory is watched rather than the file itself, since many
// exporters replace the file via rename and the old watch would go stale.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.logger.Printf("Watching %s for changes", w.path)

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("Watcher stopping: %v", ctx.Err())
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.logger.Printf("Change detected, resyncing %s", w.path)
			if err := w.resync(ctx); err != nil {
				w.logger.Printf("WARNING: resync failed: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Printf("WARNING: watcher error: %v", err)
		}
	}
}
