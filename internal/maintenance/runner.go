// Package maintenance runs the storefront's background loops.
package maintenance

import (
	"context"
	"sync"

	"github.com/oriys/storefront/internal/logging"
)

// Loop is a background task that runs until its context is cancelled.
type Loop interface {
	Name() string
	Run(ctx context.Context)
}

// Runner starts a set of loops and stops them together.
type Runner struct {
	loops   []Loop
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewRunner creates a Runner for loops. Nil loops are skipped.
func NewRunner(loops ...Loop) *Runner {
	r := &Runner{}
	for _, l := range loops {
		if l != nil {
			r.loops = append(r.loops, l)
		}
	}
	return r
}

// Start launches every loop in its own goroutine. The loops stop when ctx
// is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	names := make([]string, 0, len(r.loops))
	for _, l := range r.loops {
		r.wg.Add(1)
		go func(l Loop) {
			defer r.wg.Done()
			l.Run(ctx)
		}(l)
		names = append(names, l.Name())
	}
	logging.Op().Info("maintenance loops started", "loops", names)
}

// Stop cancels the loops and waits for their in-flight iterations to
// finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	logging.Op().Info("maintenance loops stopped")
}
