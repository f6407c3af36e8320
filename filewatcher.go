// Completion: 100% - File watcher complete
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Editors often save by writing a new file and renaming it over the old
// one. The platform watchers then have to watch the path again; the new
// file may take a moment to appear.
const (
	rewatchAttempts = 20
	rewatchDelay    = 50 * time.Millisecond
)

// FileWatcher calls onChange for a watched file once it has been quiet for
// the debounce period. The platform specific part is platformWatcher.
type FileWatcher struct {
	backend   *platformWatcher
	onChange  func(string)
	debounce  time.Duration
	mu        sync.Mutex
	pending   map[string]*time.Timer
	closed    bool
	stopChan  chan struct{}
	closeOnce sync.Once
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	backend, err := newPlatformWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		backend:  backend,
		onChange: onChange,
		debounce: watchDebounce,
		pending:  make(map[string]*time.Timer),
		stopChan: make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return fw.backend.add(absPath)
}

// Watch blocks, dispatching change events until Close is called
func (fw *FileWatcher) Watch() {
	fw.backend.run(fw.stopChan, fw.debouncedCallback)
}

func (fw *FileWatcher) debouncedCallback(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return
	}
	if timer, exists := fw.pending[path]; exists {
		timer.Stop()
	}

	fw.pending[path] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		if fw.closed {
			fw.mu.Unlock()
			return
		}
		delete(fw.pending, path)
		fw.mu.Unlock()

		fw.onChange(path)
	})
}

// Close stops Watch and drops every change that has not fired yet.
// It may be called more than once.
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		fw.mu.Lock()
		fw.closed = true
		for path, timer := range fw.pending {
			timer.Stop()
			delete(fw.pending, path)
		}
		fw.mu.Unlock()

		close(fw.stopChan)
		err = fw.backend.close()
	})
	return err
}

// rewatch calls add for path until it succeeds, stop is closed or the
// attempts run out
func rewatch(stop <-chan struct{}, path string, add func(string) error) bool {
	var err error
	for i := 0; i < rewatchAttempts; i++ {
		if err = add(path); err == nil {
			return true
		}
		select {
		case <-stop:
			return false
		case <-time.After(rewatchDelay):
		}
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "Stopped watching %s: %v\n", path, err)
	}
	return false
}
