// Completion: 100% - Platform-specific module complete
//go:build darwin
// +build darwin

package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// the file at the watched descriptor no longer lives at its path
const kqueueGone = unix.NOTE_DELETE | unix.NOTE_RENAME

// platformWatcher reads kqueue vnode events. Each watched file is held open;
// when it is renamed or deleted the path is opened again.
type platformWatcher struct {
	kq    int
	mu    sync.Mutex
	paths map[int]string
}

func newPlatformWatcher() (*platformWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}
	return &platformWatcher{kq: kq, paths: make(map[int]string)}, nil
}

func (w *platformWatcher) add(path string) error {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", path, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB | kqueueGone,
	}
	if _, err := unix.Kevent(w.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to add kevent for %s: %v", path, err)
	}

	w.mu.Lock()
	w.paths[fd] = path
	w.mu.Unlock()
	return nil
}

func (w *platformWatcher) run(stop <-chan struct{}, changed func(string)) {
	events := make([]unix.Kevent_t, 10)
	timeout := unix.NsecToTimespec(int64(200 * time.Millisecond))

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := unix.Kevent(w.kq, nil, events, &timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EBADF) {
				return
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading kevent: %v\n", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Ident)

			w.mu.Lock()
			path, ok := w.paths[fd]
			w.mu.Unlock()
			if !ok {
				continue
			}

			if events[i].Fflags&kqueueGone != 0 {
				w.forget(fd)
				if !rewatch(stop, path, w.add) {
					continue
				}
			}
			changed(path)
		}
	}
}

// forget closes a descriptor whose file left its path; closing it also
// removes its kevent
func (w *platformWatcher) forget(fd int) {
	w.mu.Lock()
	delete(w.paths, fd)
	w.mu.Unlock()
	unix.Close(fd)
}

func (w *platformWatcher) close() error {
	w.mu.Lock()
	for fd := range w.paths {
		unix.Close(fd)
	}
	w.mu.Unlock()
	return unix.Close(w.kq)
}
