package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

// ImportFunc receives the parsed contents of a dropped export file.
type ImportFunc func(ctx context.Context, path string, d core.LocalData) error

// Watcher imports *.json files written into a directory. Editors and copy
// tools emit several events per file, so each path settles for delay
// before it is read.
type Watcher struct {
	dir    string
	delay  time.Duration
	fn     ImportFunc
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewWatcher(dir string, delay time.Duration, fn ImportFunc, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Discard()
	}
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Watcher{
		dir:     dir,
		delay:   delay,
		fn:      fn,
		logger:  logger.WithComponent(log.ComponentExport),
		pending: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.InfoContext(ctx, "Watching for imports", "dir", w.dir)

	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "Watcher error", log.FieldError, err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.pending[path]; ok && prev.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.delay, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		w.logger.WarnContext(ctx, "Cannot open import file", "path", path, log.FieldError, err)
		return
	}
	defer f.Close()

	d, err := Import(f)
	if err != nil {
		w.logger.WarnContext(ctx, "Rejected import file", "path", path, log.FieldError, err)
		return
	}
	if err := w.fn(ctx, path, d); err != nil {
		w.logger.ErrorContext(ctx, "Import failed", "path", path, log.FieldError, err)
		return
	}
	w.logger.InfoContext(ctx, "Imported file", "path", path, log.FieldCount, len(d.Transactions))
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
