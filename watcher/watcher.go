// Package watcher turns filesystem events on the shared-state file into
// debounced change notifications. The parent directory is watched rather
// than the file itself: atomic writers replace the file by rename, which
// swaps the inode out from under a direct file watch, and the file may
// not even exist yet when watching starts.
//
// Notifications are advisory. Watch errors are logged and swallowed; the
// engine's poll timer is the correctness backstop on filesystems where
// events are unreliable.
package watcher

import (
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dirstate/dirstate/logging"
)

// DefaultDebounce is the quiet period after a burst of events before
// subscribers are notified once for the whole burst.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches one file and delivers one callback per burst of
// changes. It is safe for concurrent use.
type Watcher struct {
	path     string
	dir      string
	base     string
	debounce time.Duration
	log      *logging.Logger

	mu          sync.Mutex
	started     bool
	nextSubID   int
	subscribers map[int]func()

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	stopped chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the burst-coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger attaches a logger. Defaults to a nop logger.
func WithLogger(log *logging.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log.WithComponent("watcher")
		}
	}
}

// New creates a Watcher for the file at path. Nothing happens until
// Start.
func New(path string, opts ...Option) *Watcher {
	w := &Watcher{
		path:        path,
		dir:         filepath.Dir(path),
		base:        filepath.Base(path),
		debounce:    DefaultDebounce,
		log:         logging.NopLogger(),
		subscribers: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe registers a callback invoked once per burst of changes to
// the watched file. Callbacks run on the watcher's goroutine and should
// hand off real work. Returns an id for Unsubscribe.
func (w *Watcher) Subscribe(fn func()) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextSubID++
	w.subscribers[w.nextSubID] = fn
	return w.nextSubID
}

// Unsubscribe removes a callback by id. Returns true if it was present.
func (w *Watcher) Unsubscribe(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.subscribers[id]; !ok {
		return false
	}
	delete(w.subscribers, id)
	return true
}

// Start begins watching the file's directory. The directory must exist;
// the file need not.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.stopped = make(chan struct{})
	w.started = true

	go w.watchLoop(fsw, w.stopCh, w.stopped)

	w.log.Debug("watching", "dir", w.dir, "file", w.base)
	return nil
}

// IsWatching reports whether the watch loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Stop halts event delivery and joins the watch goroutine. Safe to call
// multiple times and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	stopCh, stopped, fsw := w.stopCh, w.stopped, w.fsw
	w.mu.Unlock()

	close(stopCh)
	<-stopped
	_ = fsw.Close()
}

// watchLoop coalesces raw events with a debounce timer and notifies
// subscribers when the timer fires.
func (w *Watcher) watchLoop(fsw *fsnotify.Watcher, stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer
	defer debounceTimer.Stop()

	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			w.notify()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			// Polling covers anything a dropped event would have told us
			w.log.Debug("watch error", "error", err.Error())
		}
	}
}

// notify invokes every subscriber once, isolating panics so one bad
// callback cannot kill the loop.
func (w *Watcher) notify() {
	w.mu.Lock()
	fns := make([]func(), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		w.safeCall(fn)
	}
}

func (w *Watcher) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("change callback panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}
