package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

func newTestCache(t *testing.T) (*EdgeCache, *kvstore.MemoryStore, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	store := kvstore.NewMemoryStore(clk)
	return NewEdgeCache(store, clk, zap.NewNop()), store, clk
}

func otcQuote(clk clock.Clock, venueID, from, to string) quote.EdgeQuote {
	now := clk.NowMs()
	return quote.EdgeQuote{
		VenueID:       venueID,
		VenueKind:     quote.VenueOTC,
		FromToken:     from,
		ToToken:       to,
		AmountIn:      10000,
		AmountOut:     2000,
		FeeBps:        40,
		LastUpdatedTs: now,
		ExpiryTs:      now + 30_000,
	}
}

func TestKeyFamilies(t *testing.T) {
	otc := quote.EdgeQuote{VenueKind: quote.VenueOTC, FromToken: "BRL", ToToken: "USDC", VenueID: "otc:alpha"}
	assert.Equal(t, "otc:quotes:BRL:USDC:otc:alpha", Key(&otc))

	fx := quote.EdgeQuote{VenueKind: quote.VenueFX, FromToken: "USD", ToToken: "EUR", VenueID: "fx:wise"}
	assert.Equal(t, "otc:quotes:USD:EUR:fx:wise", Key(&fx))

	dex := quote.EdgeQuote{VenueKind: quote.VenueDEX, FromToken: "USDC", ToToken: "EURC", VenueID: "dex:orca:pool1"}
	assert.Equal(t, "routing:edge:solana:USDC:EURC:dex:orca:pool1", Key(&dex))
}

func TestPutAndGetByPair(t *testing.T) {
	ctx := context.Background()
	c, _, clk := newTestCache(t)

	q := otcQuote(clk, "otc:alpha", "BRL", "USDC")
	require.NoError(t, c.PutQuote(ctx, &q))

	got, err := c.GetCachedByPair(ctx, "BRL", "USDC")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "otc:alpha", got[0].VenueID)

	// Wrong direction finds nothing.
	got, err = c.GetCachedByPair(ctx, "USDC", "BRL")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPutQuoteRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	c, _, clk := newTestCache(t)

	q := otcQuote(clk, "otc:alpha", "BRL", "USDC")
	q.AmountIn = 0
	assert.Error(t, c.PutQuote(ctx, &q))
}

func TestBatchSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	c, _, clk := newTestCache(t)

	good := otcQuote(clk, "otc:alpha", "BRL", "USDC")
	bad := otcQuote(clk, "otc:beta", "BRL", "USDC")
	bad.ExpiryTs = bad.LastUpdatedTs

	require.NoError(t, c.PutQuoteBatch(ctx, []quote.EdgeQuote{good, bad}))

	got, err := c.GetCachedByPair(ctx, "BRL", "USDC")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "otc:alpha", got[0].VenueID)
}

func TestExpiredQuotesDropped(t *testing.T) {
	ctx := context.Background()
	c, _, clk := newTestCache(t)

	q := otcQuote(clk, "otc:alpha", "BRL", "USDC")
	require.NoError(t, c.PutQuote(ctx, &q))

	clk.Advance(31 * time.Second)
	got, err := c.GetCachedByPair(ctx, "BRL", "USDC")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCorruptRecordDoesNotPoisonPair(t *testing.T) {
	ctx := context.Background()
	c, store, clk := newTestCache(t)

	q := otcQuote(clk, "otc:alpha", "BRL", "USDC")
	require.NoError(t, c.PutQuote(ctx, &q))
	require.NoError(t, store.Set(ctx, "otc:quotes:BRL:USDC:otc:broken", "not-json", time.Minute))

	got, err := c.GetCachedByPair(ctx, "BRL", "USDC")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "otc:alpha", got[0].VenueID)
}

func TestScanCoversBothFamilies(t *testing.T) {
	ctx := context.Background()
	c, _, clk := newTestCache(t)

	otc := otcQuote(clk, "otc:alpha", "USDC", "EURC")
	dex := otcQuote(clk, "dex:orca:pool1", "USDC", "EURC")
	dex.VenueKind = quote.VenueDEX
	require.NoError(t, c.PutQuoteBatch(ctx, []quote.EdgeQuote{otc, dex}))

	keys, err := c.ScanByPair(ctx, "USDC", "EURC")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
