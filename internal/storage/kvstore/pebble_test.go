package kvstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapay/routingd/internal/clock"
)

func newTestPebble(t *testing.T) (*PebbleStore, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1000, 0))
	s, err := NewPebbleStore(t.TempDir(), clk)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clk
}

func TestPebbleStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestPebble(t)

	require.NoError(t, s.Set(ctx, "k1", "v1", 0))
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestPebble(t)

	require.NoError(t, s.Set(ctx, "k1", "v1", 10*time.Second))

	clk.Advance(9 * time.Second)
	_, err := s.Get(ctx, "k1")
	assert.NoError(t, err)

	clk.Advance(2 * time.Second)
	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleStoreSetNX(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestPebble(t)

	ok, err := s.SetNX(ctx, "k1", "first", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k1", "second", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(6 * time.Second)
	ok, err = s.SetNX(ctx, "k1", "third", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPebbleStoreSetNXSingleWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestPebble(t)

	const goroutines = 32
	const rounds = 200

	for round := 0; round < rounds; round++ {
		key := fmt.Sprintf("quote:reserved:%d", round)

		start := make(chan struct{})
		var wg sync.WaitGroup
		var winners atomic.Int32
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				<-start
				ok, err := s.SetNX(ctx, key, fmt.Sprintf("claim-%d", g), time.Minute)
				assert.NoError(t, err)
				if ok {
					winners.Add(1)
				}
			}(g)
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), winners.Load(), "round %d", round)
	}
}

func TestPebbleStoreScanSkipsExpired(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestPebble(t)

	require.NoError(t, s.MSet(ctx, []Item{
		{Key: "routing:edge:solana:USDC:EURC:dex:a", Value: "{}", TTL: time.Minute},
		{Key: "routing:edge:solana:USDC:EURC:dex:b", Value: "{}", TTL: time.Second},
		{Key: "routing:edge:solana:USDC:BRL:dex:a", Value: "{}", TTL: time.Minute},
	}))

	clk.Advance(2 * time.Second)
	keys, err := s.Scan(ctx, "routing:edge:solana:USDC:EURC:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"routing:edge:solana:USDC:EURC:dex:a"}, keys)
}

func TestPebbleStoreMGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestPebble(t)

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	vals, err := s.MGet(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, vals, 2)
	require.NotNil(t, vals[0])
	assert.Equal(t, "1", *vals[0])
	assert.Nil(t, vals[1])
}

func TestPebbleStoreClosed(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(1000, 0))
	s, err := NewPebbleStore(t.TempDir(), clk)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("abd"), prefixUpperBound([]byte("abc")))
	assert.Equal(t, []byte{0x62}, prefixUpperBound([]byte{0x61, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}
