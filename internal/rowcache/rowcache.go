// Package rowcache keeps scheduled inventory rows materialized in the store.
//
// Two sorted sets drive it: delay: maps a row to its refresh interval in
// seconds and schedule: maps it to its next due time. The refresher handles
// the single earliest-due row per iteration. A row whose interval is zero or
// negative, or whose interval is missing, is retired: both entries and the
// cached copy are deleted.
package rowcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/inventory"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
	"github.com/oriys/storefront/internal/logging"
	"github.com/oriys/storefront/internal/loop"
	"github.com/oriys/storefront/internal/metrics"
	"github.com/oriys/storefront/internal/observability"
)

// Outcome is the result of one refresher iteration.
type Outcome int

const (
	Idle Outcome = iota
	Refreshed
	Retired
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Refreshed:
		return metrics.RowRefreshed
	case Retired:
		return metrics.RowRetired
	case Failed:
		return metrics.RowFailed
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config configures the refresher.
type Config struct {
	// PollInterval is the sleep while no row is due.
	PollInterval time.Duration
}

var timeNow = time.Now

// Refresher schedules and refreshes cached rows.
type Refresher struct {
	store  kv.Store
	keys   keyspace.Keys
	source inventory.Source
	cfg    Config
}

// NewRefresher validates cfg and returns a Refresher.
func NewRefresher(store kv.Store, keys keyspace.Keys, source inventory.Source, cfg Config) (*Refresher, error) {
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: row poll interval must be positive", config.ErrInvalid)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: row refresher requires a source", config.ErrInvalid)
	}
	return &Refresher{store: store, keys: keys, source: source, cfg: cfg}, nil
}

// Name identifies the loop in logs and metrics.
func (r *Refresher) Name() string { return "rows" }

// Schedule sets id's refresh interval and makes it due now. A delay of zero
// or less retires the row on its next iteration. Concurrent calls for the
// same row are last-writer-wins.
func (r *Refresher) Schedule(ctx context.Context, id string, delay time.Duration) error {
	if id == "" {
		return fmt.Errorf("%w: row id is required", config.ErrInvalid)
	}
	if err := r.store.ZAdd(ctx, r.keys.Delay(), kv.Member{Name: id, Score: delay.Seconds()}); err != nil {
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	if err := r.store.ZAdd(ctx, r.keys.Schedule(), kv.Member{Name: id, Score: kv.TimeScore(timeNow())}); err != nil {
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	r.reportScheduled(ctx)
	return nil
}

// Unschedule retires id on the refresher's next iteration.
// DelayFromSeconds converts a refresh interval given in seconds. Values
// that are not finite or do not fit in a time.Duration are rejected.
func DelayFromSeconds(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || math.Abs(seconds) >= math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("%w: refresh interval %v seconds is out of range", config.ErrInvalid, seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (r *Refresher) Unschedule(ctx context.Context, id string) error {
	return r.Schedule(ctx, id, 0)
}

// Get returns the materialized row. kv.ErrNotFound means the row has not
// been refreshed yet or was retired.
func (r *Refresher) Get(ctx context.Context, id string) (*inventory.Row, error) {
	raw, err := r.store.Get(ctx, r.keys.Row(id))
	if err != nil {
		return nil, fmt.Errorf("get row %s: %w", id, err)
	}
	var row inventory.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode row %s: %w", id, err)
	}
	return &row, nil
}

// Run refreshes due rows until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	loop.Run(ctx, r.Name(), r.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		outcome, err := r.Step(ctx)
		return outcome != Idle, err
	})
}

// Step handles the earliest-due row if it is due.
func (r *Refresher) Step(ctx context.Context) (Outcome, error) {
	next, err := r.store.ZRange(ctx, r.keys.Schedule(), 0, 0)
	if err != nil {
		return Idle, fmt.Errorf("peek schedule: %w", err)
	}
	now := timeNow()
	if len(next) == 0 || next[0].Score > kv.TimeScore(now) {
		return Idle, nil
	}
	id := next[0].Name

	ctx, span := observability.StartSpan(ctx, "rowcache.refresh", observability.AttrRow.String(id))
	defer span.End()

	outcome, err := r.refresh(ctx, id, now)
	metrics.RecordRowRefresh(outcome.String())
	span.SetAttributes(observability.AttrRowOutcome.String(outcome.String()))
	if err != nil {
		observability.SetSpanError(span, err)
		return outcome, err
	}
	observability.SetSpanOK(span)
	return outcome, nil
}

func (r *Refresher) refresh(ctx context.Context, id string, now time.Time) (Outcome, error) {
	log := logging.Component(r.Name())

	delay, err := r.store.ZScore(ctx, r.keys.Delay(), id)
	if errors.Is(err, kv.ErrNotFound) {
		log.Warn("scheduled row has no delay, retiring", "row", id)
		return r.retire(ctx, id)
	}
	if err != nil {
		return Failed, fmt.Errorf("read delay %s: %w", id, err)
	}
	if delay <= 0 {
		return r.retire(ctx, id)
	}

	due := kv.TimeScore(now) + delay
	row, err := r.source.Load(ctx, id)
	if errors.Is(err, inventory.ErrNotFound) {
		log.Info("row missing from source, retiring", "row", id)
		return r.retire(ctx, id)
	}
	if err != nil {
		if serr := r.store.ZAdd(ctx, r.keys.Schedule(), kv.Member{Name: id, Score: due}); serr != nil {
			return Failed, fmt.Errorf("reschedule %s: %w", id, serr)
		}
		return Failed, fmt.Errorf("load row %s: %w", id, err)
	}

	raw, err := json.Marshal(row)
	if err != nil {
		return Failed, fmt.Errorf("encode row %s: %w", id, err)
	}
	if err := r.store.ZAdd(ctx, r.keys.Schedule(), kv.Member{Name: id, Score: due}); err != nil {
		return Failed, fmt.Errorf("reschedule %s: %w", id, err)
	}
	if err := r.store.Set(ctx, r.keys.Row(id), raw, 0); err != nil {
		return Failed, fmt.Errorf("store row %s: %w", id, err)
	}
	log.Debug("row refreshed", "row", id, "next", kv.ScoreTime(due))
	return Refreshed, nil
}

func (r *Refresher) retire(ctx context.Context, id string) (Outcome, error) {
	if err := r.store.ZRem(ctx, r.keys.Delay(), id); err != nil {
		return Failed, fmt.Errorf("retire %s: %w", id, err)
	}
	if err := r.store.ZRem(ctx, r.keys.Schedule(), id); err != nil {
		return Failed, fmt.Errorf("retire %s: %w", id, err)
	}
	if err := r.store.Del(ctx, r.keys.Row(id)); err != nil {
		return Failed, fmt.Errorf("retire %s: %w", id, err)
	}
	r.reportScheduled(ctx)
	return Retired, nil
}

func (r *Refresher) reportScheduled(ctx context.Context) {
	if n, err := r.store.ZCard(ctx, r.keys.Schedule()); err == nil {
		metrics.SetRowsScheduled(n)
	}
}
