// Package cart stores per-session shopping carts as item -> quantity hashes.
// A cart lives as long as its session: the cart-aware session reaper and
// session logout delete it.
package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
)

// Store reads and writes carts.
type Store struct {
	store kv.Store
	keys  keyspace.Keys
}

// New creates a cart Store.
func New(store kv.Store, keys keyspace.Keys) *Store {
	return &Store{store: store, keys: keys}
}

// SetItem sets the quantity of item in the session's cart. A quantity of
// zero or less removes the item. Setting the same quantity twice is a no-op.
func (s *Store) SetItem(ctx context.Context, session, item string, quantity int) error {
	key := s.keys.Cart(session)
	var err error
	if quantity <= 0 {
		err = s.store.HDel(ctx, key, item)
	} else {
		err = s.store.HSet(ctx, key, item, strconv.Itoa(quantity))
	}
	if err != nil {
		return fmt.Errorf("set cart item: %w", err)
	}
	return nil
}

// Items returns the session's cart. Fields that do not parse as a positive
// quantity are skipped.
func (s *Store) Items(ctx context.Context, session string) (map[string]int, error) {
	raw, err := s.store.HGetAll(ctx, s.keys.Cart(session))
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	items := make(map[string]int, len(raw))
	for item, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			continue
		}
		items[item] = n
	}
	return items, nil
}

// Clear empties the session's cart.
func (s *Store) Clear(ctx context.Context, session string) error {
	if err := s.store.Del(ctx, s.keys.Cart(session)); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
