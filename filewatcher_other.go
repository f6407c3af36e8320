// Completion: 100% - Platform-specific module complete
//go:build !linux && !darwin
// +build !linux,!darwin

package main

import (
	"os"
	"sync"
	"time"
)

// platformWatcher polls modification times. Looking files up by path each
// time means replaced files need no special handling.
type platformWatcher struct {
	mu      sync.Mutex
	lastMod map[string]time.Time
}

func newPlatformWatcher() (*platformWatcher, error) {
	return &platformWatcher{lastMod: make(map[string]time.Time)}, nil
}

func (w *platformWatcher) add(path string) error {
	w.mu.Lock()
	w.lastMod[path] = time.Time{}
	w.mu.Unlock()
	return nil
}

func (w *platformWatcher) run(stop <-chan struct{}, changed func(string)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(changed)
		case <-stop:
			return
		}
	}
}

func (w *platformWatcher) check(changed func(string)) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.lastMod))
	for path := range w.lastMod {
		paths = append(paths, path)
	}
	w.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		w.mu.Lock()
		last := w.lastMod[path]
		w.lastMod[path] = info.ModTime()
		w.mu.Unlock()

		if !last.IsZero() && !info.ModTime().Equal(last) {
			changed(path)
		}
	}
}

func (w *platformWatcher) close() error {
	return nil
}
