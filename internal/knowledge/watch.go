package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
)

// Watcher loads the knowledge base into a retrieval.Store and reloads it
// when the file is replaced. A failed reload keeps the index already served.
type Watcher struct {
	path    string
	store   *retrieval.Store
	logger  *slog.Logger
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a Watcher for the knowledge base at path.
func NewWatcher(path string, store *retrieval.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:   filepath.Clean(path),
		store:  store,
		logger: logger,
	}
}

// Load reads the file and publishes it.
func (w *Watcher) Load(ctx context.Context) error {
	ix, err := Load(ctx, w.path)
	if err != nil {
		return err
	}
	w.store.Swap(ix)

	w.logger.InfoContext(ctx, "knowledge base loaded",
		slog.String("path", w.path),
		slog.String("build_id", ix.Meta().BuildID),
		slog.Int("chunks", ix.Len()),
		slog.Int("dimension", ix.Dimension()),
	)
	return nil
}

// Watch reloads the index whenever the file is written or renamed into
// place. The parent directory is watched since builds replace the file.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info("watching knowledge base for changes", slog.String("path", w.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("knowledge watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				w.logger.Info("knowledge base changed, reloading", slog.String("op", event.Op.String()))
				if err := w.Load(ctx); err != nil {
					w.logger.Error("failed to reload knowledge base, keeping current index",
						slog.String("error", err.Error()),
						slog.String("path", w.path))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("knowledge watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
