package kvstore

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/lumapay/routingd/internal/clock"
)

// PebbleStore backs the Store interface with an embedded pebble database
// for single-node deployments that run without Redis. Pebble has no
// native TTL, so every value is prefixed with an 8-byte big-endian
// expiry (epoch ms, zero for none) and expired entries are dropped
// lazily on read and scan.
type PebbleStore struct {
	db  *pebble.DB
	clk clock.Clock

	// Serializes SetNX's existence check against its write. Pebble has
	// no conditional-put primitive, so the claim must be locked here.
	nxMu sync.Mutex
}

const expiryHeaderLen = 8

// NewPebbleStore opens (or creates) the database at path.
func NewPebbleStore(path string, clk clock.Clock) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db, clk: clk}, nil
}

func (s *PebbleStore) encode(value string, ttl time.Duration) []byte {
	buf := make([]byte, expiryHeaderLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(s.clk.NowMs()+ttl.Milliseconds()))
	}
	copy(buf[expiryHeaderLen:], value)
	return buf
}

// decode returns the payload and whether the entry is still live.
func (s *PebbleStore) decode(raw []byte) (string, bool) {
	if len(raw) < expiryHeaderLen {
		return "", false
	}
	expiry := binary.BigEndian.Uint64(raw)
	if expiry != 0 && int64(expiry) <= s.clk.NowMs() {
		return "", false
	}
	return string(raw[expiryHeaderLen:]), true
}

func (s *PebbleStore) Get(ctx context.Context, key string) (string, error) {
	if s.db == nil {
		return "", ErrClosed
	}
	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return "", ErrNotFound
		}
		return "", err
	}
	defer closer.Close()

	val, live := s.decode(raw)
	if !live {
		// Expired entries are reaped on the next write path; treating
		// them as absent here is enough for correctness.
		return "", ErrNotFound
	}
	return val, nil
}

func (s *PebbleStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Set([]byte(key), s.encode(value, ttl), pebble.Sync)
}

func (s *PebbleStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	s.nxMu.Lock()
	defer s.nxMu.Unlock()
	if _, err := s.Get(ctx, key); err == nil {
		return false, nil
	} else if err != ErrNotFound {
		return false, err
	}
	return true, s.db.Set([]byte(key), s.encode(value, ttl), pebble.Sync)
}

func (s *PebbleStore) Del(ctx context.Context, keys ...string) error {
	if s.db == nil {
		return ErrClosed
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	out := make([]*string, len(keys))
	for i, k := range keys {
		val, err := s.Get(ctx, k)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = &val
	}
	return out, nil
}

func (s *PebbleStore) MSet(ctx context.Context, items []Item) error {
	if s.db == nil {
		return ErrClosed
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, it := range items {
		if err := batch.Set([]byte(it.Key), s.encode(it.Value, it.TTL), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	prefix := pattern
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		prefix = pattern[:i]
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		if _, live := s.decode(iter.Value()); !live {
			continue
		}
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (s *PebbleStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil when no bound exists.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
