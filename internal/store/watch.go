package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the store's root directory and its
// immediate subdirectories, invalidating the ListKinds cache on any create
// or remove event. An operator may delete a kind's directory outside this
// process (§3); without a watcher that deletion would stay invisible to
// ListKinds until something else happened to trigger a fresh walk. The
// returned func stops the watcher; callers should defer it.
func (s *Store) Watch() (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: create watcher: %w", err)
	}
	if err := watcher.Add(s.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("store: watch root %q: %w", s.root, err)
	}

	entries, err := os.ReadDir(s.root)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = watcher.Add(filepath.Join(s.root, e.Name()))
			}
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Create) {
					s.invalidateKindCache()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
