// Package popularity keeps per-session view history and a global, decaying
// item popularity ranking.
//
// Every sorted set here uses one convention: a higher score is better. View
// history is scored by view time, so the newest views rank highest; the
// popularity ranking gains +1 per view, so the most viewed items rank highest.
// "Top N" therefore always means the N highest scores, looked up with a
// reverse rank and kept with kv.TrimToTop.
package popularity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
	"github.com/oriys/storefront/internal/metrics"
)

// ViewWeight is added to an item's popularity score per view.
const ViewWeight = 1.0

// Ranker records item views.
type Ranker struct {
	store       kv.Store
	keys        keyspace.Keys
	historySize int64
}

// NewRanker creates a Ranker keeping historySize views per session.
func NewRanker(store kv.Store, keys keyspace.Keys, historySize int64) (*Ranker, error) {
	if historySize <= 0 {
		return nil, fmt.Errorf("%w: view history size must be positive", config.ErrInvalid)
	}
	return &Ranker{store: store, keys: keys, historySize: historySize}, nil
}

// RecordView appends item to the session's view history, trims the history
// to its newest entries and bumps the item's popularity. The popularity bump
// comes last; losing it to a failure drops one signal and breaks nothing.
func (r *Ranker) RecordView(ctx context.Context, token, item string, at time.Time) error {
	key := r.keys.Viewed(token)
	if err := r.store.ZAdd(ctx, key, kv.Member{Name: item, Score: kv.TimeScore(at)}); err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	if _, err := kv.TrimToTop(ctx, r.store, key, r.historySize); err != nil {
		return fmt.Errorf("trim view history: %w", err)
	}
	if _, err := r.store.ZIncrBy(ctx, r.keys.Popular(), ViewWeight, item); err != nil {
		return fmt.Errorf("bump popularity: %w", err)
	}
	metrics.RecordView()
	return nil
}

// Rank returns the item's 0-based position in the popularity ranking, most
// popular first. ok is false when the item is not ranked.
func (r *Ranker) Rank(ctx context.Context, item string) (rank int64, ok bool, err error) {
	rank, err = r.store.ZRevRank(ctx, r.keys.Popular(), item)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("popularity rank: %w", err)
	}
	return rank, true, nil
}

// Score returns the item's current popularity score, or 0 when unranked.
func (r *Ranker) Score(ctx context.Context, item string) (float64, error) {
	score, err := r.store.ZScore(ctx, r.keys.Popular(), item)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("popularity score: %w", err)
	}
	return score, nil
}

// Top returns up to n items, most popular first.
func (r *Ranker) Top(ctx context.Context, n int64) ([]kv.Member, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := r.store.ZRange(ctx, r.keys.Popular(), -n, -1)
	if err != nil {
		return nil, fmt.Errorf("top items: %w", err)
	}
	reverse(members)
	return members, nil
}

// History returns the session's viewed items, newest first.
func (r *Ranker) History(ctx context.Context, token string) ([]string, error) {
	members, err := r.store.ZRange(ctx, r.keys.Viewed(token), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("view history: %w", err)
	}
	reverse(members)
	items := make([]string, len(members))
	for i, m := range members {
		items[i] = m.Name
	}
	return items, nil
}

func reverse(ms []kv.Member) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
