package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
	"github.com/oriys/storefront/internal/logging"
)

func TestReaper_IdleUnderLimit(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		reg.Touch(ctx, fmt.Sprintf("tok%d", i), "u", "item")
	}

	r, err := NewReaper(store, keyspace.Default, ReaperConfig{Limit: 5, IdlePoll: time.Second})
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}
	n, err := r.Step(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Step = %d, %v; want 0, nil", n, err)
	}
	if c, _ := reg.Count(ctx); c != 5 {
		t.Fatalf("population changed under the limit: %d", c)
	}
}

func TestReaper_LimitZeroClearsSession(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	reg.Touch(ctx, "T", "U", "I1")

	r, _ := NewReaper(store, keyspace.Default, ReaperConfig{Limit: 0, IdlePoll: time.Second})
	if n, err := r.Step(ctx); err != nil || n != 1 {
		t.Fatalf("Step = %d, %v; want 1, nil", n, err)
	}

	if n, _ := store.HLen(ctx, keyspace.Default.Login()); n != 0 {
		t.Fatalf("identity mapping not empty: %d", n)
	}
	if n, _ := store.ZCard(ctx, keyspace.Default.Recent()); n != 0 {
		t.Fatalf("recency index not empty: %d", n)
	}
	if n, _ := store.ZCard(ctx, keyspace.Default.Viewed("T")); n != 0 {
		t.Fatalf("view history not empty: %d", n)
	}
}

func TestReaper_CartAwareVariant(t *testing.T) {
	ctx := context.Background()

	for _, carts := range []bool{false, true} {
		reg, store := newTestRegistry(t)
		reg.Touch(ctx, "T", "U", "itemX")
		store.HSet(ctx, keyspace.Default.Cart("T"), "itemY", "3")

		r, _ := NewReaper(store, keyspace.Default, ReaperConfig{Limit: 0, IdlePoll: time.Second, Carts: carts})
		r.Step(ctx)

		n, _ := store.HLen(ctx, keyspace.Default.Cart("T"))
		if carts && n != 0 {
			t.Fatal("cart-aware reaper left the cart behind")
		}
		if !carts && n != 1 {
			t.Fatal("plain reaper should not touch carts")
		}
	}
}

func TestReaper_EvictsOldestInBatches(t *testing.T) {
	fakeClock(t)
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	const total, limit = 250, 10
	for i := 0; i < total; i++ {
		reg.Touch(ctx, fmt.Sprintf("tok%03d", i), "u", "item")
	}

	r, _ := NewReaper(store, keyspace.Default, ReaperConfig{Limit: limit, BatchSize: 100, IdlePoll: time.Second})

	var batches []int
	for {
		n, err := r.Step(ctx)
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if n == 0 {
			break
		}
		batches = append(batches, n)
	}
	if fmt.Sprint(batches) != "[100 100 40]" {
		t.Fatalf("unexpected batch sizes: %v", batches)
	}
	if c, _ := reg.Count(ctx); c != limit {
		t.Fatalf("population = %d, want %d", c, limit)
	}

	for i := 0; i < total; i++ {
		token := fmt.Sprintf("tok%03d", i)
		_, ok, _ := reg.Validate(ctx, token)
		viewed, _ := store.ZCard(ctx, keyspace.Default.Viewed(token))
		survivor := i >= total-limit
		if ok != survivor || (viewed > 0) != survivor {
			t.Fatalf("token %s: valid=%v viewed=%d, survivor=%v", token, ok, viewed, survivor)
		}
	}
}

func TestReaper_OrphanedIdentityIsHarmless(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	// An identity entry without a recency entry, as left by an interrupted purge.
	store.HSet(ctx, keyspace.Default.Login(), "orphan", "u")
	reg.Touch(ctx, "live", "u", "")

	r, _ := NewReaper(store, keyspace.Default, ReaperConfig{Limit: 0, IdlePoll: time.Second})
	if n, err := r.Step(ctx); err != nil || n != 1 {
		t.Fatalf("Step = %d, %v; want 1, nil", n, err)
	}
	if n, _ := r.Step(ctx); n != 0 {
		t.Fatalf("orphan should never be reconsidered, evicted %d", n)
	}
}

func TestReaper_RunSurvivesOutageAndStops(t *testing.T) {
	logging.Discard()
	defer logging.InitStructured("text", "info")

	store := kv.NewMemoryStore()
	store.Close()

	r, _ := NewReaper(store, keyspace.Default, ReaperConfig{Limit: 0, IdlePoll: 5 * time.Millisecond})
	if _, err := r.Step(context.Background()); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestNewReaper_RejectsBadConfig(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	for _, cfg := range []ReaperConfig{
		{Limit: -1, IdlePoll: time.Second},
		{Limit: 1, IdlePoll: 0},
	} {
		if _, err := NewReaper(store, keyspace.Default, cfg); !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("config %+v: expected ErrInvalid, got %v", cfg, err)
		}
	}
}
