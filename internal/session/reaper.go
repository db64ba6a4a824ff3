package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
	"github.com/oriys/storefront/internal/logging"
	"github.com/oriys/storefront/internal/loop"
	"github.com/oriys/storefront/internal/metrics"
)

// ReaperConfig configures session eviction.
type ReaperConfig struct {
	// Limit is the largest population left alone. Zero evicts everything.
	Limit int64
	// BatchSize caps the tokens evicted per iteration.
	BatchSize int64
	// IdlePoll is the sleep between checks while under the limit.
	IdlePoll time.Duration
	// Carts also deletes each evicted session's cart.
	Carts bool
}

// Reaper evicts the least recently active sessions once the population
// exceeds the configured limit.
type Reaper struct {
	store kv.Store
	keys  keyspace.Keys
	cfg   ReaperConfig
}

// NewReaper validates cfg and returns a Reaper.
func NewReaper(store kv.Store, keys keyspace.Keys, cfg ReaperConfig) (*Reaper, error) {
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("%w: session limit must not be negative", config.ErrInvalid)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.IdlePoll <= 0 {
		return nil, fmt.Errorf("%w: reaper idle poll must be positive", config.ErrInvalid)
	}
	return &Reaper{store: store, keys: keys, cfg: cfg}, nil
}

// Name identifies the loop in logs and metrics.
func (r *Reaper) Name() string { return "reaper" }

// Run evicts sessions until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	loop.Run(ctx, r.Name(), r.cfg.IdlePoll, func(ctx context.Context) (bool, error) {
		n, err := r.Step(ctx)
		return n > 0, err
	})
}

// Step performs one iteration and returns how many sessions it evicted.
// Under the limit it does nothing.
func (r *Reaper) Step(ctx context.Context) (int, error) {
	size, err := r.store.ZCard(ctx, r.keys.Recent())
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	metrics.SetActiveSessions(size)
	if size <= r.cfg.Limit {
		return 0, nil
	}

	n := min(size-r.cfg.Limit, r.cfg.BatchSize)
	oldest, err := r.store.ZRange(ctx, r.keys.Recent(), 0, n-1)
	if err != nil {
		return 0, fmt.Errorf("select sessions: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	tokens := make([]string, len(oldest))
	for i, m := range oldest {
		tokens[i] = m.Name
	}
	if err := purge(ctx, r.store, r.keys, tokens, r.cfg.Carts); err != nil {
		return 0, fmt.Errorf("evict sessions: %w", err)
	}

	metrics.RecordSessionsEvicted(len(tokens))
	logging.Component(r.Name()).Debug("evicted sessions", "count", len(tokens), "population", size)
	return len(tokens), nil
}
