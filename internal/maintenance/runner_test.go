package maintenance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type blockingLoop struct {
	name    string
	started atomic.Int32
	stopped atomic.Int32
}

func (l *blockingLoop) Name() string { return l.name }

func (l *blockingLoop) Run(ctx context.Context) {
	l.started.Add(1)
	<-ctx.Done()
	l.stopped.Add(1)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunner_StartStop(t *testing.T) {
	a := &blockingLoop{name: "a"}
	b := &blockingLoop{name: "b"}
	r := NewRunner(a, nil, b)

	r.Start(context.Background())
	r.Start(context.Background())
	waitFor(t, func() bool { return a.started.Load() == 1 && b.started.Load() == 1 })

	r.Stop()
	if a.stopped.Load() != 1 || b.stopped.Load() != 1 {
		t.Fatalf("loops not stopped: a=%d b=%d", a.stopped.Load(), b.stopped.Load())
	}
	r.Stop()
}

func TestRunner_ParentCancel(t *testing.T) {
	a := &blockingLoop{name: "a"}
	r := NewRunner(a)
	ctx, cancel := context.WithCancel(context.Background())

	r.Start(ctx)
	cancel()
	waitFor(t, func() bool { return a.stopped.Load() == 1 })
	r.Stop()
}

func TestRunner_StopBeforeStart(t *testing.T) {
	NewRunner(&blockingLoop{name: "a"}).Stop()
}
