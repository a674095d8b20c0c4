package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const defaultDebounce = 200 * time.Millisecond

// ReloadFunc receives a freshly loaded catalog.
type ReloadFunc func(ctx context.Context, cat Catalog)

// Watcher reloads a catalog file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	watcher  *fsnotify.Watcher

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWatcher creates a watcher for path. The parent directory is watched so
// editors that replace the file are handled.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create catalog watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch catalog directory: %w", err)
	}

	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Watcher{
		path:     absPath,
		debounce: debounce,
		onReload: onReload,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start processes file events until ctx ends or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path || !(evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			observability.FromContext(ctx).Warn("catalog watcher error", observability.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cat, err := Load(w.path)
	if err != nil {
		observability.FromContext(ctx).Warn("catalog reload failed",
			observability.String("path", w.path),
			observability.Error(err))
		return
	}

	observability.FromContext(ctx).Info("catalog reloaded",
		observability.String("path", w.path),
		observability.Int("providers", len(cat.Providers)))

	w.onReload(ctx, cat)
}
