package kv

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// runStoreSuite exercises the Store contract. It is shared by the memory and
// Redis implementations so both are held to the same semantics.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ScalarSetGetDel", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := s.Get(ctx, "k")
		if err != nil || string(val) != "v" {
			t.Fatalf("Get = %q, %v", val, err)
		}
		if err := s.Del(ctx, "k", "missing"); err != nil {
			t.Fatalf("Del failed: %v", err)
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after Del, got %v", err)
		}
	})

	t.Run("ScalarExpiry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Set(ctx, "ttl", []byte("v"), 50*time.Millisecond); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, err := s.Get(ctx, "ttl"); err != nil {
			t.Fatalf("Get before expiry failed: %v", err)
		}
		time.Sleep(120 * time.Millisecond)
		if _, err := s.Get(ctx, "ttl"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after expiry, got %v", err)
		}
	})

	t.Run("Hash", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		s.HSet(ctx, "h", "a", "1")
		s.HSet(ctx, "h", "b", "2")
		if v, err := s.HGet(ctx, "h", "a"); err != nil || v != "1" {
			t.Fatalf("HGet = %q, %v", v, err)
		}
		if n, _ := s.HLen(ctx, "h"); n != 2 {
			t.Fatalf("HLen = %d, want 2", n)
		}
		if err := s.HDel(ctx, "h", "a", "zzz"); err != nil {
			t.Fatalf("HDel failed: %v", err)
		}
		all, err := s.HGetAll(ctx, "h")
		if err != nil {
			t.Fatalf("HGetAll failed: %v", err)
		}
		if len(all) != 1 || all["b"] != "2" {
			t.Fatalf("unexpected hash contents: %v", all)
		}
		if _, err := s.HGet(ctx, "h", "a"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SortedSetOrdering", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		s.ZAdd(ctx, "z",
			Member{Name: "c", Score: 3},
			Member{Name: "a", Score: 1},
			Member{Name: "b2", Score: 2},
			Member{Name: "b1", Score: 2},
		)
		got, err := s.ZRange(ctx, "z", 0, -1)
		if err != nil {
			t.Fatalf("ZRange failed: %v", err)
		}
		want := []string{"a", "b1", "b2", "c"}
		if len(got) != len(want) {
			t.Fatalf("ZRange returned %d members, want %d", len(got), len(want))
		}
		for i, m := range got {
			if m.Name != want[i] {
				t.Fatalf("ZRange[%d] = %s, want %s", i, m.Name, want[i])
			}
		}

		first, _ := s.ZRange(ctx, "z", 0, 0)
		if len(first) != 1 || first[0].Name != "a" || first[0].Score != 1 {
			t.Fatalf("unexpected first member: %+v", first)
		}
		if r, _ := s.ZRank(ctx, "z", "c"); r != 3 {
			t.Fatalf("ZRank(c) = %d, want 3", r)
		}
		if r, _ := s.ZRevRank(ctx, "z", "c"); r != 0 {
			t.Fatalf("ZRevRank(c) = %d, want 0", r)
		}
		if _, err := s.ZRank(ctx, "z", "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if n, _ := s.ZCard(ctx, "z"); n != 4 {
			t.Fatalf("ZCard = %d, want 4", n)
		}
	})

	t.Run("SortedSetScores", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		score, err := s.ZIncrBy(ctx, "z", 1, "x")
		if err != nil || score != 1 {
			t.Fatalf("ZIncrBy = %v, %v", score, err)
		}
		s.ZIncrBy(ctx, "z", 2.5, "x")
		if got, _ := s.ZScore(ctx, "z", "x"); got != 3.5 {
			t.Fatalf("ZScore = %v, want 3.5", got)
		}
		if _, err := s.ZScore(ctx, "z", "y"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.ZScale(ctx, "z", 0.5); err != nil {
			t.Fatalf("ZScale failed: %v", err)
		}
		if got, _ := s.ZScore(ctx, "z", "x"); got != 1.75 {
			t.Fatalf("ZScore after scale = %v, want 1.75", got)
		}
		s.ZRem(ctx, "z", "x")
		if n, _ := s.ZCard(ctx, "z"); n != 0 {
			t.Fatalf("ZCard after ZRem = %d, want 0", n)
		}
	})

	t.Run("SortedSetRangeByScore", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, name := range []string{"a", "b", "c", "d"} {
			s.ZAdd(ctx, "z", Member{Name: name, Score: float64(i)})
		}
		got, err := s.ZRangeByScore(ctx, "z", 1, 2, 0)
		if err != nil {
			t.Fatalf("ZRangeByScore failed: %v", err)
		}
		if len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
			t.Fatalf("unexpected range: %+v", got)
		}
		got, _ = s.ZRangeByScore(ctx, "z", math.Inf(-1), math.Inf(1), 1)
		if len(got) != 1 || got[0].Name != "a" {
			t.Fatalf("unexpected limited range: %+v", got)
		}
	})

	t.Run("TrimToTop", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 10; i++ {
			s.ZAdd(ctx, "z", Member{Name: string(rune('a' + i)), Score: float64(i)})
		}
		removed, err := TrimToTop(ctx, s, "z", 3)
		if err != nil {
			t.Fatalf("TrimToTop failed: %v", err)
		}
		if removed != 7 {
			t.Fatalf("removed %d, want 7", removed)
		}
		got, _ := s.ZRange(ctx, "z", 0, -1)
		if len(got) != 3 || got[0].Name != "h" || got[2].Name != "j" {
			t.Fatalf("unexpected survivors: %+v", got)
		}
		removed, _ = TrimToTop(ctx, s, "z", 5)
		if removed != 0 {
			t.Fatalf("trimming a small set removed %d members", removed)
		}
	})
}
