package kvstore

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/lumapay/routingd/internal/clock"
)

// MemoryStore is an in-process Store for tests and local development.
// Expiry is evaluated lazily against the injected clock, so tests can
// advance time manually.
type MemoryStore struct {
	clk    clock.Clock
	mu     sync.RWMutex
	data   map[string]memEntry
	closed bool
}

type memEntry struct {
	value string
	// expiresAt is zero when the entry never expires.
	expiresAt time.Time
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clk:  clk,
		data: make(map[string]memEntry),
	}
}

func (s *MemoryStore) live(e memEntry) bool {
	return e.expiresAt.IsZero() || s.clk.Now().Before(e.expiresAt)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	e, ok := s.data[key]
	if !ok || !s.live(e) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data[key] = s.entry(value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if e, ok := s.data[key]; ok && s.live(e) {
		return false, nil
	}
	s.data[key] = s.entry(value, ttl)
	return true, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *MemoryStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*string, len(keys))
	for i, k := range keys {
		if e, ok := s.data[k]; ok && s.live(e) {
			v := e.value
			out[i] = &v
		}
	}
	return out, nil
}

func (s *MemoryStore) MSet(ctx context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, it := range items {
		s.data[it.Key] = s.entry(it.Value, it.TTL)
	}
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k, e := range s.data {
		if !s.live(e) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) entry(value string, ttl time.Duration) memEntry {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clk.Now().Add(ttl)
	}
	return e
}
