package binarycache

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/glyphlang/glyph-dap/internal/errors"
	"github.com/glyphlang/glyph-dap/internal/logging"
)

// Watcher debounces filesystem change notifications for a set of script
// directories and invalidates the cache's scan so the next lookup re-walks
// the VM's (presumably hot-reloaded) namespaces. This is the SPEC_FULL.md
// "live invalidation" addition; spec.md's own cache contract only names
// `clear()` and leaves triggering it to the host.
//
// Grounded on the teacher's directory-watch + debounce loop
// (cmd/glyph/server.go watchForChanges/reload): watch directories rather
// than individual files, since editors often replace a file instead of
// writing it in place, and debounce bursts of events from a single save.
type Watcher struct {
	cache    *Cache
	watcher  *fsnotify.Watcher
	log      *logging.Logger
	debounce time.Duration
	done     chan struct{}
}

// NewWatcher creates a Watcher over the given script directories. Call
// Start to begin watching and Close to stop.
func NewWatcher(cache *Cache, log *logging.Logger, dirs []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.NotLoaded, err, "create file watcher")
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, errors.Wrap(errors.NotLoaded, err, "watch directory %s", dir)
		}
	}
	return &Watcher{
		cache:    cache,
		watcher:  fw,
		log:      log,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the debounced invalidation loop until Close is called. Meant
// to be run in its own goroutine.
func (w *Watcher) Start() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.invalidate)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn(errors.Format(errors.Wrap(errors.NotLoaded, err, "watcher error")))
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) invalidate() {
	if w.log != nil {
		w.log.Info("script directory changed, invalidating binary cache")
	}
	w.cache.Clear()
}

// Close stops the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
