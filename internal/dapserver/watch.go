// Live invalidation of the binary cache when a script file under
// project.path changes on disk (SPEC_FULL.md §4.2 "Live invalidation").
// Grounded on cmd/glyph/main.go's hotReloadManager.watchForChanges: an
// fsnotify watcher over the directory (editors do atomic saves, which
// replace rather than write the watched file directly), debounced, reacting
// to Write/Create/Remove/Rename.
package dapserver

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/glyphlang/glyph-dap/internal/logging"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
)

const watchDebounce = 100 * time.Millisecond

// projectWatcher watches a project directory tree and calls onEvent for
// every script-like file that changes, debounced per path.
type projectWatcher struct {
	watcher *fsnotify.Watcher
	log     *logging.Logger
	onEvent func(relPath string, removed bool)

	stop chan struct{}
}

// startProjectWatcher watches every directory under root, invoking onEvent
// for Write/Create/Remove/Rename events on script files. Returns nil if root is
// empty (watching disabled).
func startProjectWatcher(root string, log *logging.Logger, onEvent func(relPath string, removed bool)) *projectWatcher {
	if root == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		if log != nil {
			log.Warn("dapserver: failed to create project watcher: " + err.Error())
		}
		return nil
	}
	pw := &projectWatcher{watcher: w, log: log, onEvent: onEvent, stop: make(chan struct{})}
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if addErr := w.Add(path); addErr != nil && log != nil {
			log.Warn("dapserver: failed to watch directory " + path + ": " + addErr.Error())
		}
		return nil
	})
	go pw.run(root)
	return pw
}

func (pw *projectWatcher) run(root string) {
	debouncers := make(map[string]*time.Timer)
	for {
		select {
		case <-pw.stop:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil || !scriptref.IsScriptPath(event.Name) {
				continue
			}
			rel = filepath.ToSlash(rel)
			removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if t, exists := debouncers[strings.ToLower(rel)]; exists {
				t.Stop()
			}
			debouncers[strings.ToLower(rel)] = time.AfterFunc(watchDebounce, func() {
				pw.onEvent(rel, removed)
			})
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			if pw.log != nil {
				pw.log.Warn("dapserver: project watcher error: " + err.Error())
			}
		}
	}
}

func (pw *projectWatcher) Close() {
	if pw == nil {
		return
	}
	close(pw.stop)
	pw.watcher.Close()
}
