package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/filehound/filehound/fhound/search"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when a tracked scope root changes on
// disk, catching the renames and deletes deep in a subtree that the
// root-mtime freshness check cannot see. Invalidation is idempotent, so
// events are applied directly without debouncing.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Store

	mu     sync.Mutex
	scopes map[string][]string // root -> fingerprints tracked under it

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher bound to the given store.
func NewWatcher(store *Store) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: fsWatcher,
		store:   store,
		scopes:  make(map[string][]string),
	}, nil
}

// Track registers a scope: its roots are added to the OS watch list and any
// event under one of them invalidates the scope's cache entry.
func (w *Watcher) Track(scope search.Scope) error {
	fp := scope.Fingerprint()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, root := range scope.Normalized().Roots {
		if _, tracked := w.scopes[root]; !tracked {
			if err := w.watcher.Add(root); err != nil {
				slog.Warn("Failed to watch scope root", "path", root, "error", err)
				continue
			}
		}
		if !containsString(w.scopes[root], fp) {
			w.scopes[root] = append(w.scopes[root], fp)
		}
	}
	return nil
}

// Start begins consuming filesystem events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Watcher error", "error", err)
			}
		}
	}()
}

// Close stops the event loop and releases the OS watch handles.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	var stale []string
	for root, fps := range w.scopes {
		if event.Name == root || strings.HasPrefix(event.Name, root+string(filepath.Separator)) {
			stale = append(stale, fps...)
		}
	}
	w.mu.Unlock()

	for _, fp := range stale {
		if err := w.store.invalidateFingerprint(fp); err != nil {
			slog.Warn("Failed to invalidate cache entry", "fingerprint", fp, "error", err)
			continue
		}
		slog.Debug("Cache entry invalidated by filesystem event",
			"fingerprint", fp,
			"path", event.Name,
			"op", event.Op.String())
	}
}

// TrackedStore couples a Store with a Watcher: every successful cache write
// also registers the scope's roots for event-driven invalidation. It is the
// CacheStore implementation the daemon hands to the scanner when watching is
// enabled.
type TrackedStore struct {
	*Store
	Watcher *Watcher
}

// Put writes through to the store and then tracks the scope.
func (t *TrackedStore) Put(scope search.Scope, records []search.FileRecord) error {
	if err := t.Store.Put(scope, records); err != nil {
		return err
	}
	if err := t.Watcher.Track(scope); err != nil {
		slog.Warn("Failed to track scope for invalidation", "error", err)
	}
	return nil
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
