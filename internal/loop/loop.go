// Package loop runs the storefront's polling maintenance tasks.
//
// A task is a Step function that performs one bounded unit of work. Run calls
// it until the context is cancelled. An iteration that reports no work, or
// fails, is followed by an idle sleep; an iteration that did work is followed
// immediately by the next one so a backlog drains without waiting. Sleeps
// wake on cancellation, so shutdown latency does not depend on the idle
// interval. An in-flight Step is never interrupted by the loop itself.
package loop

import (
	"context"
	"time"

	"github.com/oriys/storefront/internal/logging"
	"github.com/oriys/storefront/internal/metrics"
)

// StepFunc performs one iteration. busy reports whether work was done and
// the loop should continue without sleeping.
type StepFunc func(ctx context.Context) (busy bool, err error)

// Run drives step until ctx is done. Errors are logged and counted but never
// stop the loop.
func Run(ctx context.Context, name string, idle time.Duration, step StepFunc) {
	log := logging.Component(name)
	log.Info("maintenance loop started", "idle", idle)
	defer log.Info("maintenance loop stopped")

	for ctx.Err() == nil {
		busy, err := step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.RecordLoopError(name)
			log.Warn("maintenance iteration failed", "error", err)
			busy = false
		}
		if busy {
			continue
		}
		if !Sleep(ctx, idle) {
			return
		}
	}
}

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
