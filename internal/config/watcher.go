package config

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/escape-llc/eink-billboard/internal/logging"
)

// Watcher evicts cached objects when their backing files change outside
// the process, so edits made over SSH or by the file API take effect on
// the next Get without a restart. It never reloads eagerly; eviction is
// cheap and idempotent.
type Watcher struct {
	mgr    *Manager
	root   string
	fw     *fsnotify.Watcher
	logger *slog.Logger
	done   chan struct{}
}

// NewWatcher starts watching the document tree rooted at root and
// forwards change events to mgr.Evict. Close releases the watch.
func NewWatcher(mgr *Manager, root string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		mgr:    mgr,
		root:   root,
		fw:     fw,
		logger: logging.Default(logger).With("component", "config-watcher"),
		done:   make(chan struct{}),
	}
	if err := w.watchTree(root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	go w.run()
	return w, nil
}

// watchTree registers every directory under dir. fsnotify watches are
// per-directory, not recursive.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	if !ev.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
		return
	}
	moniker, ok := w.moniker(ev.Name)
	if !ok {
		return
	}
	w.mgr.Evict(moniker)
	w.logger.Debug("evicted after file change", "moniker", moniker, "op", ev.Op.String())
}

// moniker maps a changed path back to its document moniker. Non-JSON
// files (editor temp files, the atomic-write staging files) are ignored.
func (w *Watcher) moniker(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	name, ok := strings.CutSuffix(filepath.ToSlash(rel), ".json")
	if !ok {
		return "", false
	}
	return name, true
}

// Close stops the watcher and waits for its event loop to exit.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
