package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

// DiagChangeCallback is called when a model's diagnostic files change.
// changedFiles holds the paths that were written since the last flush.
type DiagChangeCallback func(model domain.Model, changedFiles []string)

// DiagWatcher monitors the diag_<root> directories of running models and
// reports writes to their .diag files, debounced so a burst of appends
// from a single cycle produces one callback.
type DiagWatcher struct {
	watcher  *fsnotify.Watcher
	callback DiagChangeCallback
	debounce time.Duration

	// Watched models keyed by their diag directory.
	models map[string]domain.Model

	// Debounce state, tracked per model.
	pendingByModel map[string]map[string]struct{}
	timer          *time.Timer
	mu             sync.Mutex

	cancel context.CancelFunc
}

// NewDiagWatcher creates a watcher for model diagnostic directories.
func NewDiagWatcher(callback DiagChangeCallback) (*DiagWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dw := &DiagWatcher{
		watcher:        watcher,
		callback:       callback,
		debounce:       500 * time.Millisecond,
		models:         make(map[string]domain.Model),
		pendingByModel: make(map[string]map[string]struct{}),
	}

	return dw, nil
}

// AddModel starts watching a model's diag directory. Models whose
// directory does not exist yet are skipped silently; add them again
// once the simulation has created it.
func (dw *DiagWatcher) AddModel(m domain.Model) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	dir := m.DiagDir()
	if _, exists := dw.models[dir]; exists {
		return nil
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	if err := dw.watcher.Add(dir); err != nil {
		return err
	}

	dw.models[dir] = m
	return nil
}

// RemoveModel stops watching a model.
func (dw *DiagWatcher) RemoveModel(m domain.Model) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	dir := m.DiagDir()
	if _, exists := dw.models[dir]; !exists {
		return
	}

	dw.watcher.Remove(dir)
	delete(dw.models, dir)
	delete(dw.pendingByModel, dir)
}

// Start begins watching for file changes.
func (dw *DiagWatcher) Start(ctx context.Context) {
	ctx, dw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-dw.watcher.Events:
				if !ok {
					return
				}
				dw.handleEvent(event)
			case _, ok := <-dw.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Stop stops watching for file changes.
func (dw *DiagWatcher) Stop() {
	if dw.cancel != nil {
		dw.cancel()
	}
	dw.watcher.Close()
}

func (dw *DiagWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".diag") {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	dw.mu.Lock()
	defer dw.mu.Unlock()

	dir := filepath.Dir(event.Name)
	if _, watched := dw.models[dir]; !watched {
		return
	}

	if dw.pendingByModel[dir] == nil {
		dw.pendingByModel[dir] = make(map[string]struct{})
	}
	dw.pendingByModel[dir][event.Name] = struct{}{}

	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.timer = time.AfterFunc(dw.debounce, dw.flush)
}

func (dw *DiagWatcher) flush() {
	dw.mu.Lock()
	pending := dw.pendingByModel
	dw.pendingByModel = make(map[string]map[string]struct{})
	models := make(map[string]domain.Model, len(pending))
	for dir := range pending {
		models[dir] = dw.models[dir]
	}
	dw.mu.Unlock()

	if dw.callback == nil {
		return
	}

	for dir, fileMap := range pending {
		files := make([]string, 0, len(fileMap))
		for f := range fileMap {
			files = append(files, f)
		}
		if len(files) > 0 {
			dw.callback(models[dir], files)
		}
	}
}

// SetDebounce sets the debounce duration for batching diag writes.
func (dw *DiagWatcher) SetDebounce(d time.Duration) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	dw.debounce = d
}
