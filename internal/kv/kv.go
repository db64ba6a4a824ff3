// Package kv defines the keyed store adapter that every storefront component
// talks to. It exposes the small set of Redis-style primitives the session,
// cart, popularity and caching layers are built from: scalar cells with
// expiry, hash fields, and sorted sets. Each method maps to a single
// store command and is therefore atomic with respect to concurrent callers;
// no method combines commands into a transaction.
package kv

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when a key, hash field or set member does not exist.
	ErrNotFound = errors.New("kv: not found")

	// ErrUnavailable wraps every failure to reach the backing store.
	// Callers use errors.Is to tell it apart from ErrNotFound.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Member is a sorted-set member together with its score.
type Member struct {
	Name  string
	Score float64
}

// Store abstracts the keyed store. Sorted-set ranges are ordered ascending by
// score, ties broken by member name, with Redis-style negative indexes
// (-1 is the last element).
type Store interface {
	// Get returns the value of a scalar key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a scalar value. A zero ttl keeps the key until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes any number of keys of any type. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)

	// ZAdd upserts members; existing members get the new score.
	ZAdd(ctx context.Context, key string, members ...Member) error
	// ZIncrBy adds incr to the member's score (creating it at 0) and returns the new score.
	ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)
	// ZRange returns members between the start and stop ranks, inclusive.
	ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error)
	// ZRangeByScore returns members with min <= score <= max. A limit <= 0 means no limit.
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]Member, error)
	// ZRank returns the ascending 0-based rank of member, or ErrNotFound.
	ZRank(ctx context.Context, key, member string) (int64, error)
	// ZRevRank returns the descending 0-based rank of member, or ErrNotFound.
	ZRevRank(ctx context.Context, key, member string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	// ZRemRangeByRank removes members between the start and stop ranks and
	// returns how many were removed.
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)
	// ZScale multiplies every score in the set by factor in one command.
	ZScale(ctx context.Context, key string, factor float64) error

	Ping(ctx context.Context) error
	Close() error
}

// TrimToTop keeps the n highest-scored members of a sorted set and returns
// how many members were removed.
func TrimToTop(ctx context.Context, s Store, key string, n int64) (int64, error) {
	return s.ZRemRangeByRank(ctx, key, 0, -(n + 1))
}

// TimeScore encodes a timestamp as a sorted-set score in unix seconds with
// microsecond precision.
func TimeScore(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// ScoreTime decodes a TimeScore.
func ScoreTime(score float64) time.Time {
	return time.UnixMicro(int64(math.Round(score * 1e6)))
}
