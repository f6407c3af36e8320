// Completion: 100% - Watch mode complete
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/xyproto/mkbridge/internal/bridge"
)

// watchDebounce is how long a file must stay quiet before it is reread
const watchDebounce = 500 * time.Millisecond

// watchAndRegenerate regenerates the bridge file every time the header or
// one of the symbol lists changes. A failed regeneration is reported and
// the previous output is removed, as for a normal run. It returns when ctx
// is cancelled or the process is interrupted.
func watchAndRegenerate(ctx context.Context, paths Paths, e bridge.Emitter, useColor bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "\nWatch mode enabled - monitoring %s, %s and %s\n", paths.Header, paths.ToAsmList, paths.FromAsmList)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop, or send SIGUSR1 to trigger manual reload\n")
	fmt.Fprintf(os.Stderr, "Command: kill -USR1 %d\n\n", os.Getpid())

	// Signals and file events may arrive together
	var mu sync.Mutex
	regenerate := func(trigger string) {
		mu.Lock()
		defer mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		fmt.Fprintf(os.Stderr, "[%s] %s\n", time.Now().Format("15:04:05"), trigger)
		if err := Run(ctx, paths, e); err != nil {
			fmt.Fprint(os.Stderr, FormatError(err, useColor))
			return
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", paths.Output)
	}

	regenerate("Initial generation...")

	stopSignal := setupReloadSignal(regenerate)
	defer stopSignal()

	watcher, err := NewFileWatcher(func(path string) {
		regenerate(fmt.Sprintf("File changed: %s", filepath.Base(path)))
	})
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %v", err)
	}
	defer watcher.Close()

	for _, path := range []string{paths.Header, paths.ToAsmList, paths.FromAsmList} {
		if err := watcher.AddFile(path); err != nil {
			return fmt.Errorf("failed to watch file: %v", err)
		}
	}

	go func() {
		<-ctx.Done()
		watcher.Close()
	}()

	watcher.Watch()
	return nil
}
