// Package safego runs background work with panic recovery, so one bad sweep
// or install cannot take the process down or silently end a loop.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/fairpm/fair-go/internal/telemetry"
)

// Run calls fn and recovers a panic from it. It reports whether fn
// panicked. task names the work in logs and metrics.
func Run(task string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			telemetry.BackgroundPanicsTotal.WithLabelValues(task).Inc()
			slog.Error("recovered panic in background task", "task", task, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
	return false
}

// Go runs fn in a new goroutine with the recovery of Run.
func Go(task string, fn func()) {
	go Run(task, fn)
}
