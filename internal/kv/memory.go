package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same ordering and expiry
// semantics as RedisStore. It serves single-node deployments and tests.
// A closed MemoryStore fails every call with ErrUnavailable.
type MemoryStore struct {
	mu      sync.RWMutex
	cells   map[string]*memCell
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	closed  bool
	stopCh  chan struct{}
	stopped sync.Once
}

type memCell struct {
	value     []byte
	expiresAt time.Time
}

func (c *memCell) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// NewMemoryStore creates an empty store with periodic eviction of expired cells.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		cells:  make(map[string]*memCell),
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]float64),
		stopCh: make(chan struct{}),
	}
	go s.evictLoop(30 * time.Second)
	return s
}

var errClosed = fmt.Errorf("%w: memory store closed", ErrUnavailable)

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	c, ok := s.cells[key]
	if !ok || c.expired(time.Now()) {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(c.value))
	copy(cp, c.value)
	return cp, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.cells[key] = &memCell{value: cp, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, k := range keys {
		delete(s.cells, k)
		delete(s.hashes, k)
		delete(s.zsets, k)
	}
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", errClosed
	}
	v, ok := s.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(s.hashes, key)
	}
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) HLen(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	return int64(len(s.hashes[key])), nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, members ...Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if len(members) == 0 {
		return nil
	}
	z := s.zsetLocked(key)
	for _, m := range members {
		z[m.Name] = m.Score
	}
	return nil
}

func (s *MemoryStore) ZIncrBy(_ context.Context, key string, incr float64, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	z := s.zsetLocked(key)
	z[member] += incr
	return z[member], nil
}

func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(z, m)
	}
	if len(z) == 0 {
		delete(s.zsets, key)
	}
	return nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) ZRange(_ context.Context, key string, start, stop int64) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	sorted := s.sortedLocked(key)
	lo, hi, ok := rankBounds(int64(len(sorted)), start, stop)
	if !ok {
		return []Member{}, nil
	}
	out := make([]Member, hi-lo+1)
	copy(out, sorted[lo:hi+1])
	return out, nil
}

func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := []Member{}
	for _, m := range s.sortedLocked(key) {
		if m.Score < min || m.Score > max {
			continue
		}
		out = append(out, m)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ZRank(_ context.Context, key, member string) (int64, error) {
	return s.rank(key, member, false)
}

func (s *MemoryStore) ZRevRank(_ context.Context, key, member string) (int64, error) {
	return s.rank(key, member, true)
}

func (s *MemoryStore) rank(key, member string, reverse bool) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	if _, ok := s.zsets[key][member]; !ok {
		return 0, ErrNotFound
	}
	sorted := s.sortedLocked(key)
	for i, m := range sorted {
		if m.Name == member {
			if reverse {
				return int64(len(sorted) - 1 - i), nil
			}
			return int64(i), nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	score, ok := s.zsets[key][member]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

func (s *MemoryStore) ZRemRangeByRank(_ context.Context, key string, start, stop int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	sorted := s.sortedLocked(key)
	lo, hi, ok := rankBounds(int64(len(sorted)), start, stop)
	if !ok {
		return 0, nil
	}
	z := s.zsets[key]
	for _, m := range sorted[lo : hi+1] {
		delete(z, m.Name)
	}
	if len(z) == 0 {
		delete(s.zsets, key)
	}
	return hi - lo + 1, nil
}

func (s *MemoryStore) ZScale(_ context.Context, key string, factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for m, score := range s.zsets[key] {
		s.zsets[key][m] = score * factor
	}
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close drops all data. Later calls fail with ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cells = nil
	s.hashes = nil
	s.zsets = nil
	s.stopped.Do(func() { close(s.stopCh) })
	return nil
}

func (s *MemoryStore) zsetLocked(key string) map[string]float64 {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	return z
}

func (s *MemoryStore) sortedLocked(key string) []Member {
	z := s.zsets[key]
	out := make([]Member, 0, len(z))
	for name, score := range z {
		out = append(out, Member{Name: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// rankBounds resolves Redis-style inclusive rank bounds against a set of
// size n. ok is false when the range is empty.
func rankBounds(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

func (s *MemoryStore) evictLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, c := range s.cells {
				if c.expired(now) {
					delete(s.cells, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
