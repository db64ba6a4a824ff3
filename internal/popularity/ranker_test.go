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

func newTestRanker(t *testing.T) (*Ranker, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	r, err := NewRanker(store, keyspace.Default, 25)
	if err != nil {
		t.Fatalf("NewRanker failed: %v", err)
	}
	return r, store
}

func TestRecordView_KeepsNewest25(t *testing.T) {
	r, store := newTestRanker(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 40; i++ {
		item := fmt.Sprintf("item%02d", i)
		if err := r.RecordView(ctx, "tok", item, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordView failed: %v", err)
		}
	}

	if n, _ := store.ZCard(ctx, keyspace.Default.Viewed("tok")); n != 25 {
		t.Fatalf("history size = %d, want 25", n)
	}
	history, err := r.History(ctx, "tok")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if history[0] != "item39" || history[24] != "item15" {
		t.Fatalf("unexpected history bounds: first=%s last=%s", history[0], history[24])
	}
}

func TestRecordView_RepeatViewRefreshesPosition(t *testing.T) {
	r, _ := newTestRanker(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	r.RecordView(ctx, "tok", "a", base)
	r.RecordView(ctx, "tok", "b", base.Add(time.Second))
	r.RecordView(ctx, "tok", "a", base.Add(2*time.Second))

	history, _ := r.History(ctx, "tok")
	if len(history) != 2 || history[0] != "a" || history[1] != "b" {
		t.Fatalf("unexpected history: %v", history)
	}
	if score, _ := r.Score(ctx, "a"); score != 2 {
		t.Fatalf("popularity of a = %v, want 2", score)
	}
}

func TestRank_MostPopularFirst(t *testing.T) {
	r, _ := newTestRanker(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		r.RecordView(ctx, "tok", "hot", now)
	}
	r.RecordView(ctx, "tok", "warm", now)

	rank, ok, err := r.Rank(ctx, "hot")
	if err != nil || !ok || rank != 0 {
		t.Fatalf("Rank(hot) = %d, %v, %v; want 0, true, nil", rank, ok, err)
	}
	rank, ok, _ = r.Rank(ctx, "warm")
	if !ok || rank != 1 {
		t.Fatalf("Rank(warm) = %d, %v; want 1, true", rank, ok)
	}
	if _, ok, _ := r.Rank(ctx, "cold"); ok {
		t.Fatal("unviewed item should not be ranked")
	}

	top, err := r.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(top) != 2 || top[0].Name != "hot" || top[0].Score != 3 {
		t.Fatalf("unexpected top: %+v", top)
	}
}

func TestRank_StoreUnavailable(t *testing.T) {
	r, store := newTestRanker(t)
	store.Close()

	if _, _, err := r.Rank(context.Background(), "x"); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewRanker_RejectsBadHistory(t *testing.T) {
	if _, err := NewRanker(kv.NewMemoryStore(), keyspace.Default, 0); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
