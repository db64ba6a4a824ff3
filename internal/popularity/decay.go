package popularity

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

// DecayFactor scales every popularity score once per decay pass, giving the
// ranking a half-life of one interval.
const DecayFactor = 0.5

// DecayConfig configures the decay loop.
type DecayConfig struct {
	Interval time.Duration
	KeepTop  int64
}

// Decayer periodically trims the popularity ranking to its top entries and
// halves the remaining scores.
type Decayer struct {
	store kv.Store
	keys  keyspace.Keys
	cfg   DecayConfig
}

// NewDecayer validates cfg and returns a Decayer.
func NewDecayer(store kv.Store, keys keyspace.Keys, cfg DecayConfig) (*Decayer, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: decay interval must be positive", config.ErrInvalid)
	}
	if cfg.KeepTop <= 0 {
		return nil, fmt.Errorf("%w: decay keep-top must be positive", config.ErrInvalid)
	}
	return &Decayer{store: store, keys: keys, cfg: cfg}, nil
}

// Name identifies the loop in logs and metrics.
func (d *Decayer) Name() string { return "decay" }

// Run decays the ranking every interval until ctx is cancelled. The first
// pass runs immediately.
func (d *Decayer) Run(ctx context.Context) {
	loop.Run(ctx, d.Name(), d.cfg.Interval, func(ctx context.Context) (bool, error) {
		_, err := d.Step(ctx)
		return false, err
	})
}

// Step runs one decay pass and returns how many items were trimmed.
func (d *Decayer) Step(ctx context.Context) (int64, error) {
	trimmed, err := kv.TrimToTop(ctx, d.store, d.keys.Popular(), d.cfg.KeepTop)
	if err != nil {
		return 0, fmt.Errorf("trim popularity: %w", err)
	}
	if err := d.store.ZScale(ctx, d.keys.Popular(), DecayFactor); err != nil {
		return trimmed, fmt.Errorf("rescale popularity: %w", err)
	}
	metrics.RecordDecay(trimmed)
	logging.Component(d.Name()).Debug("popularity decayed", "trimmed", trimmed)
	return trimmed, nil
}
