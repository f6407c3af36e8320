// Completion: 100% - Platform-specific module complete
//go:build linux
// +build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// the file content changed
	inotifyChanged = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_ATTRIB
	// the watched inode no longer lives at its path
	inotifyGone = unix.IN_MOVE_SELF | unix.IN_DELETE_SELF | unix.IN_IGNORED
)

// platformWatcher reads inotify events. Watch descriptors follow inodes, so
// a path is watched again whenever its inode is moved away or deleted.
type platformWatcher struct {
	fd    int
	mu    sync.Mutex
	paths map[int]string
}

func newPlatformWatcher() (*platformWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}
	return &platformWatcher{fd: fd, paths: make(map[int]string)}, nil
}

func (w *platformWatcher) add(path string) error {
	wd, err := unix.InotifyAddWatch(w.fd, path, inotifyChanged|unix.IN_MOVE_SELF|unix.IN_DELETE_SELF)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %v", path, err)
	}

	w.mu.Lock()
	w.paths[wd] = path
	w.mu.Unlock()
	return nil
}

func (w *platformWatcher) run(stop <-chan struct{}, changed func(string)) {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*10)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if errors.Is(err, unix.EBADF) {
				return
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading inotify events: %v\n", err)
			}
			continue
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)

			wd := int(event.Wd)
			w.mu.Lock()
			path, ok := w.paths[wd]
			w.mu.Unlock()
			if !ok {
				continue
			}

			switch {
			case event.Mask&inotifyGone != 0:
				w.forget(wd)
				if rewatch(stop, path, w.add) {
					changed(path)
				}
			case event.Mask&inotifyChanged != 0:
				changed(path)
			}
		}
	}
}

// forget drops a watch descriptor whose inode left its path
func (w *platformWatcher) forget(wd int) {
	w.mu.Lock()
	delete(w.paths, wd)
	w.mu.Unlock()
	// already gone after IN_DELETE_SELF or IN_IGNORED
	unix.InotifyRmWatch(w.fd, uint32(wd))
}

func (w *platformWatcher) close() error {
	return unix.Close(w.fd)
}
