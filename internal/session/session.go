// Package session tracks login tokens: which user a token belongs to and
// when it was last active. Activity is recorded in a recency index (a sorted
// set of token -> last seen); the Reaper uses that index to bound the number
// of live sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
)

// ViewRecorder records that a session viewed an item.
type ViewRecorder interface {
	RecordView(ctx context.Context, token, item string, at time.Time) error
}

// Registry maps tokens to users and maintains the recency index.
type Registry struct {
	store kv.Store
	keys  keyspace.Keys
	views ViewRecorder
}

// NewRegistry creates a Registry. views may be nil, in which case viewed
// items passed to Touch are ignored.
func NewRegistry(store kv.Store, keys keyspace.Keys, views ViewRecorder) *Registry {
	return &Registry{store: store, keys: keys, views: views}
}

// timeNow is overridden in tests.
var timeNow = time.Now

// NewToken returns a fresh opaque session token.
func NewToken() string {
	return uuid.New().String()
}

// Validate returns the user a token belongs to. ok is false when the token
// is unknown or has been reaped.
func (r *Registry) Validate(ctx context.Context, token string) (user string, ok bool, err error) {
	user, err = r.store.HGet(ctx, r.keys.Login(), token)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("validate token: %w", err)
	}
	return user, true, nil
}

// Touch records activity for a token: it upserts the token's user, moves
// the token to the front of the recency index and, when item is non-empty,
// records the item view.
func (r *Registry) Touch(ctx context.Context, token, user, item string) error {
	now := timeNow()

	if err := r.store.HSet(ctx, r.keys.Login(), token, user); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if err := r.store.ZAdd(ctx, r.keys.Recent(), kv.Member{Name: token, Score: kv.TimeScore(now)}); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if item != "" && r.views != nil {
		if err := r.views.RecordView(ctx, token, item, now); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
	}
	return nil
}

// Count returns the number of tokens in the recency index.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	n, err := r.store.ZCard(ctx, r.keys.Recent())
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// RecentTokens returns tokens active at or after since, oldest first.
func (r *Registry) RecentTokens(ctx context.Context, since time.Time) ([]string, error) {
	members, err := r.store.ZRangeByScore(ctx, r.keys.Recent(), kv.TimeScore(since), math.Inf(1), 0)
	if err != nil {
		return nil, fmt.Errorf("recent tokens: %w", err)
	}
	tokens := make([]string, len(members))
	for i, m := range members {
		tokens[i] = m.Name
	}
	return tokens, nil
}

// Logout removes a single session and everything that depends on it.
func (r *Registry) Logout(ctx context.Context, token string) error {
	if err := purge(ctx, r.store, r.keys, []string{token}, true); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// purge deletes dependent records first, then the identity mapping, then the
// recency entry. Each group is one command; the groups are not atomic
// together. If a later group fails the token stays in the recency index
// and is purged again on the next attempt.
func purge(ctx context.Context, store kv.Store, keys keyspace.Keys, tokens []string, withCarts bool) error {
	dependent := make([]string, 0, 2*len(tokens))
	for _, t := range tokens {
		dependent = append(dependent, keys.Viewed(t))
		if withCarts {
			dependent = append(dependent, keys.Cart(t))
		}
	}
	if err := store.Del(ctx, dependent...); err != nil {
		return err
	}
	if err := store.HDel(ctx, keys.Login(), tokens...); err != nil {
		return err
	}
	return store.ZRem(ctx, keys.Recent(), tokens...)
}
