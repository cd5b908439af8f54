// Package lifecycle wraps CLI command execution with timing and a completion
// callback.
//
// The package is intentionally minimal: no event bus, no goroutines, no
// external dependencies.
package lifecycle

import "time"

// Handler is told when a command finishes.
//
// Implementations must be safe for nil receivers; Run checks for a nil
// interface before calling.
type Handler interface {
	// OnCommandComplete is called when a CLI command finishes execution.
	// Parameters:
	//   - name: the command path (e.g., "stagetrail check")
	//   - success: true if the command completed without error
	//   - duration: how long the command took to execute
	OnCommandComplete(name string, success bool, duration time.Duration)
}

// Run executes fn, then reports its outcome and duration to h.
// The error from fn is returned unchanged.
func Run(h Handler, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if h != nil {
		h.OnCommandComplete(name, err == nil, time.Since(start))
	}
	return err
}
