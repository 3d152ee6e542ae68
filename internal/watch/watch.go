// Package watch turns filesystem notifications below a store root into
// debounced batches of raw store events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leafo/shelf/internal/store"
)

const DefaultDebounce = 150 * time.Millisecond

// Handler receives the external events of one settled window.
type Handler interface {
	HandleEvents(ctx context.Context, events []store.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, events []store.Event) error

func (f HandlerFunc) HandleEvents(ctx context.Context, events []store.Event) error {
	return f(ctx, events)
}

// Filter decides whether a raw path notification is an echo of our own
// dispatch. *selfevent.Tracker satisfies it.
type Filter interface {
	ShouldIgnore(raw string) bool
}

// Options control a Watcher.
type Options struct {
	Debounce   time.Duration
	IgnoreDirs []string
	Filter     Filter
	Logger     *slog.Logger
}

// Watcher watches a root directory recursively.
type Watcher struct {
	root    string
	opts    Options
	logger  *slog.Logger
	watched map[string]struct{}
	pending map[store.Event]struct{}
	ready   chan struct{}
}

// New constructs a Watcher for root. Nothing is watched until Run.
func New(root string, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:    filepath.Clean(root),
		opts:    opts,
		logger:  logger,
		watched: make(map[string]struct{}),
		pending: make(map[store.Event]struct{}),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the initial directory tree is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done, delivering every settled window of
// external events to handler.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addRecursiveWatch(watcher, w.root, false); err != nil {
		return err
	}
	close(w.ready)

	w.logger.Info("Watch mode active", "root", w.root, "debounce", w.opts.Debounce.String())

	var debounceTimer *time.Timer
	for {
		var debounceC <-chan time.Time
		if debounceTimer != nil {
			debounceC = debounceTimer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(&debounceTimer)
			w.logger.Info("Stopping watch mode", "reason", ctx.Err())
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.handleWatcherEvent(event, watcher) {
				w.scheduleFlush(&debounceTimer)
			}
		case err, ok := <-watcher.Errors:
			if !ok || err == nil {
				continue
			}
			w.logger.Error("Watcher error", "error", err)
		case <-debounceC:
			stopTimer(&debounceTimer)
			events := w.flush()
			if len(events) == 0 {
				continue
			}
			if err := handler.HandleEvents(ctx, events); err != nil {
				w.logger.Error("Handling external events failed", "events", len(events), "error", err)
				if errors.Is(err, context.Canceled) {
					return err
				}
			}
		}
	}
}

// handleWatcherEvent records the store event for a raw notification and
// reports whether anything was queued.
func (w *Watcher) handleWatcherEvent(event fsnotify.Event, watcher *fsnotify.Watcher) bool {
	path := filepath.Clean(event.Name)
	rel := w.relativePath(path)
	if rel == "." || rel == "" || w.isIgnored(rel) {
		return false
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if err := w.addRecursiveWatch(watcher, path, true); err != nil {
				w.logger.Error("Failed to watch new directory", "path", rel, "error", err)
			}
		}
		w.queue(store.OpCreated, rel)
	case event.Has(fsnotify.Remove):
		w.forget(watcher, path)
		w.queue(store.OpDeleted, rel)
	case event.Has(fsnotify.Rename):
		w.forget(watcher, path)
		w.queue(store.OpRenamed, rel)
	default:
		return false
	}
	return true
}

// addRecursiveWatch watches start and every directory below it. When
// announce is set, entries found below start are queued as created: they
// may have appeared before the watch was in place.
func (w *Watcher) addRecursiveWatch(watcher *fsnotify.Watcher, start string, announce bool) error {
	return filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		clean := filepath.Clean(path)
		rel := w.relativePath(clean)
		if rel != "." && w.isIgnored(rel) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if announce && clean != start {
			w.queue(store.OpCreated, rel)
		}
		if !entry.IsDir() {
			return nil
		}
		if _, ok := w.watched[clean]; ok {
			return nil
		}
		if err := watcher.Add(clean); err != nil {
			return fmt.Errorf("watch directory %s: %w", clean, err)
		}
		w.watched[clean] = struct{}{}
		w.logger.Debug("Watching directory", "path", rel)
		return nil
	})
}

func (w *Watcher) forget(watcher *fsnotify.Watcher, path string) {
	if _, ok := w.watched[path]; !ok {
		return
	}
	prefix := path + string(filepath.Separator)
	for dir := range w.watched {
		if dir != path && !strings.HasPrefix(dir, prefix) {
			continue
		}
		// The kernel drops watches on vanished directories; Remove may
		// report that and there is nothing left to do.
		_ = watcher.Remove(dir)
		delete(w.watched, dir)
	}
	w.logger.Debug("Stopped watching directory", "path", w.relativePath(path))
}

func (w *Watcher) queue(op store.Op, rel string) {
	w.pending[store.Event{Op: op, Path: rel}] = struct{}{}
}

// flush drains the pending window, drops echoes of our own dispatch and
// returns the rest ordered by path, then op.
func (w *Watcher) flush() []store.Event {
	events := make([]store.Event, 0, len(w.pending))
	for ev := range w.pending {
		events = append(events, ev)
	}
	w.pending = make(map[store.Event]struct{})
	sort.Slice(events, func(i, j int) bool {
		if events[i].Path != events[j].Path {
			return events[i].Path < events[j].Path
		}
		return events[i].Op < events[j].Op
	})

	external := events[:0]
	for _, ev := range events {
		if w.opts.Filter != nil && w.opts.Filter.ShouldIgnore(ev.Path) {
			w.logger.Debug("Ignoring self event", "op", ev.Op, "path", ev.Path)
			continue
		}
		external = append(external, ev)
	}
	return external
}

func (w *Watcher) isIgnored(rel string) bool {
	rel = strings.TrimLeft(filepath.ToSlash(rel), "/")
	if strings.HasPrefix(filepath.Base(rel), store.TempPrefix) {
		return true
	}
	for _, dir := range w.opts.IgnoreDirs {
		d := strings.Trim(strings.TrimSpace(filepath.ToSlash(dir)), "/")
		if d == "" {
			continue
		}
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

func (w *Watcher) relativePath(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) scheduleFlush(timer **time.Timer) {
	if *timer == nil {
		*timer = time.NewTimer(w.opts.Debounce)
		return
	}
	if !(*timer).Stop() {
		select {
		case <-(*timer).C:
		default:
		}
	}
	(*timer).Reset(w.opts.Debounce)
}

func stopTimer(timer **time.Timer) {
	if *timer == nil {
		return
	}
	if !(*timer).Stop() {
		select {
		case <-(*timer).C:
		default:
		}
	}
	*timer = nil
}
