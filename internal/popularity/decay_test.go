package popularity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
)

func TestDecayer_TrimsAndHalves(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	key := keyspace.Default.Popular()

	before := make(map[string]float64)
	for i := 1; i <= 30; i++ {
		name := fmt.Sprintf("item%02d", i)
		score := float64(i * 3)
		before[name] = score
		store.ZAdd(ctx, key, kv.Member{Name: name, Score: score})
	}

	d, err := NewDecayer(store, keyspace.Default, DecayConfig{Interval: time.Minute, KeepTop: 20})
	if err != nil {
		t.Fatalf("NewDecayer failed: %v", err)
	}
	trimmed, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if trimmed != 10 {
		t.Fatalf("trimmed %d, want 10", trimmed)
	}

	remaining, _ := store.ZRange(ctx, key, 0, -1)
	if len(remaining) != 20 {
		t.Fatalf("remaining %d, want 20", len(remaining))
	}
	for _, m := range remaining {
		if m.Name < "item11" {
			t.Fatalf("least popular item %s survived the trim", m.Name)
		}
		if m.Score != before[m.Name]/2 {
			t.Fatalf("score of %s = %v, want %v", m.Name, m.Score, before[m.Name]/2)
		}
	}
}

func TestDecayer_RankingOrderSurvivesDecay(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	r, _ := NewRanker(store, keyspace.Default, 25)
	d, _ := NewDecayer(store, keyspace.Default, DecayConfig{Interval: time.Minute, KeepTop: 2})

	now := time.Now()
	for i := 0; i < 4; i++ {
		r.RecordView(ctx, "tok", "a", now)
	}
	r.RecordView(ctx, "tok", "b", now)
	r.RecordView(ctx, "tok", "b", now)
	r.RecordView(ctx, "tok", "c", now)

	if _, err := d.Step(ctx); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if _, ok, _ := r.Rank(ctx, "c"); ok {
		t.Fatal("least popular item should have been trimmed")
	}
	if rank, ok, _ := r.Rank(ctx, "a"); !ok || rank != 0 {
		t.Fatalf("Rank(a) = %d, %v; want 0, true", rank, ok)
	}
	if score, _ := r.Score(ctx, "b"); score != 1 {
		t.Fatalf("score of b = %v, want 1", score)
	}
}

func TestDecayer_RunStopsOnCancel(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	store.ZAdd(ctx, keyspace.Default.Popular(), kv.Member{Name: "x", Score: 8})

	d, _ := NewDecayer(store, keyspace.Default, DecayConfig{Interval: time.Hour, KeepTop: 10})
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		score, _ := store.ZScore(context.Background(), keyspace.Default.Popular(), "x")
		if score == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first decay pass did not run immediately, score=%v", score)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decay loop did not stop within a second of cancel")
	}
}

func TestNewDecayer_RejectsBadConfig(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	for _, cfg := range []DecayConfig{
		{Interval: 0, KeepTop: 10},
		{Interval: time.Second, KeepTop: 0},
	} {
		if _, err := NewDecayer(store, keyspace.Default, cfg); !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("config %+v: expected ErrInvalid, got %v", cfg, err)
		}
	}
}
