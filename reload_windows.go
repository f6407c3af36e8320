// Completion: 100% - Platform-specific module complete
//go:build windows
// +build windows

package main

func setupReloadSignal(regenerate func(string)) func() {
	// Windows doesn't support SIGUSR1, so we skip signal-based reload
	return func() {}
}
