// Package watch reruns an action when scene or script files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
)

// DefaultDelay collapses the burst of events an editor save produces.
const DefaultDelay = 150 * time.Millisecond

// Func is called with the most recently changed file of a burst.
type Func func(ctx context.Context, path string)

// Watcher watches a set of files. Their directories are watched rather
// than the files, so editors that save by rename are still seen.
type Watcher struct {
	files map[string]bool
	delay time.Duration
	fn    Func
}

// New returns a watcher calling fn after changes to files. A zero delay
// means DefaultDelay.
func New(files []string, delay time.Duration, fn Func) (*Watcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("watch: no files")
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	w := &Watcher{files: make(map[string]bool), delay: delay, fn: fn}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
		w.files[abs] = true
	}
	return w, nil
}

// Run blocks until ctx is done. Calls to fn never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	dirs := lo.Uniq(lo.Map(lo.Keys(w.files), func(f string, _ int) string { return filepath.Dir(f) }))
	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
		slog.Debug("watching directory", "dir", d)
	}

	var (
		mu      sync.Mutex
		pending string
		running sync.Mutex
	)
	debounced := debounce.New(w.delay)
	fire := func() {
		mu.Lock()
		path := pending
		mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		running.Lock()
		defer running.Unlock()
		w.fn(ctx, path)
	}

	for {
		select {
		case <-ctx.Done():
			// Cancel a pending call.
			debounced(func() {})
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("file changed", "path", ev.Name, "op", ev.Op.String())
			mu.Lock()
			pending = ev.Name
			mu.Unlock()
			debounced(fire)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}
