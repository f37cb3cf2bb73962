package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher invalidates registry entries when files under a domain directory
// change, so the next Get reloads and re-validates the domain.
type Watcher struct {
	registry *Registry
	logger   *zap.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	// OnInvalidate is called with the id of each invalidated domain.
	OnInvalidate func(id string)

	pendingMu sync.Mutex
	pending   map[string]struct{}

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func NewWatcher(registry *Registry, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		registry: registry,
		logger:   logger,
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start adds watches for the registry root and runs the event loop until ctx
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.registry.Root()
	if err := w.addRecursive(root); err != nil {
		return err
	}
	w.started.Store(true)
	go w.loop(ctx)
	w.logger.Info("domain watcher started", zap.String("root", root), zap.Duration("debounce", w.debounce))
	return nil
}

func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
		if w.started.Load() {
			<-w.done
		}
	})
	return err
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("domain watcher error", zap.Error(err))
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}
	switch strings.ToLower(filepath.Ext(ev.Name)) {
	case ".yaml", ".yml":
	default:
		return
	}
	w.pendingMu.Lock()
	w.pending[ev.Name] = struct{}{}
	w.pendingMu.Unlock()
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := sortedKeys(w.pending)
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	seen := make(map[string]bool)
	for _, p := range paths {
		id, ok := w.registry.InvalidatePath(filepath.Dir(p))
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		w.logger.Info("domain invalidated", zap.String("domain", id), zap.String("path", p))
		if w.OnInvalidate != nil {
			w.OnInvalidate(id)
		}
	}
}
