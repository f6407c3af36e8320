// Completion: 100% - Platform-specific module complete
//go:build !windows
// +build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// setupReloadSignal calls regenerate whenever the process receives SIGUSR1.
// The returned function stops listening.
func setupReloadSignal(regenerate func(string)) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	go func() {
		for range sigChan {
			regenerate("Manual reload triggered (SIGUSR1)")
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}
