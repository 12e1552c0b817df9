// Package watch adapts filesystem notifications into pipeline changes. It
// watches workspace roots recursively, registers new directories as they
// appear, and maps fsnotify operations onto change kinds: writes and
// creates become edits, removes and renames become deletes.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/jward/arbor/internal/pipeline"
)

// skipDirs are never watched; they churn constantly and are never indexed.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"target":       true,
	"__pycache__":  true,
}

// Watcher streams file changes from one or more roots to a handler.
type Watcher struct {
	fsw     *fsnotify.Watcher
	log     *logrus.Entry
	handler func(pipeline.Change)

	mu      sync.Mutex
	watched map[string]bool
	closed  bool
	done    chan struct{}
}

// New returns a watcher delivering changes to handler. The handler runs on
// the watcher goroutine; hand off long work.
func New(logger *logrus.Logger, handler func(pipeline.Change)) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fsw:     fsw,
		log:     logger.WithField("component", "watch"),
		handler: handler,
		watched: map[string]bool{},
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Add watches root and every directory below it, skipping hidden and
// dependency directories.
func (w *Watcher) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != abs && (strings.HasPrefix(name, ".") || skipDirs[name]) {
			return filepath.SkipDir
		}
		return w.watchDir(path)
	})
}

func (w *Watcher) watchDir(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.watched[path] {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w.watched[path] = true
	return nil
}

// loop translates fsnotify events until Close.
func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		// New directories join the watch so files created inside them are
		// seen; new files flow through as edits.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return
			}
			if err := w.watchDir(event.Name); err != nil {
				w.log.WithError(err).WithField("dir", event.Name).Warn("cannot watch new directory")
			}
			return
		}
		w.emit(pipeline.Change{Path: event.Name, Kind: pipeline.ChangeModified})

	case event.Op.Has(fsnotify.Write):
		w.emit(pipeline.Change{Path: event.Name, Kind: pipeline.ChangeModified})

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.emit(pipeline.Change{Path: event.Name, Kind: pipeline.ChangeDeleted})
	}
}

func (w *Watcher) emit(c pipeline.Change) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed || w.handler == nil {
		return
	}
	w.handler(c)
}

// Watched returns the watched directory count.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Close stops the event loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}
