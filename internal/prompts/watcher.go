package prompts

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Locator maps files under a backend root back to documents.
type Locator interface {
	Root() string
	Locate(path string) (Scope, Identity, bool)
}

// Watcher publishes EventExternalChange on the store whenever a document
// file under the locator root changes on disk. Changes to documents the
// store itself wrote moments earlier are skipped.
type Watcher struct {
	store   *Store
	locator Locator
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
}

// NewWatcher starts watching every directory under the locator root.
func NewWatcher(store *Store, locator Locator, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{store: store, locator: locator, logger: logger, fsw: fsw}
	if err := w.addTree(locator.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// fsnotify is not recursive, so every directory is added on its own.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run delivers events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	scope, id, ok := w.locator.Locate(ev.Name)
	if !ok {
		return
	}
	if w.store.wroteRecently(scope, id) {
		return
	}
	w.logger.Debug("document changed on disk", "document", id.Key(scope), "op", ev.Op.String())
	w.store.Publish(Event{Kind: EventExternalChange, Scope: scope, Identity: id, Path: ev.Name})
}
