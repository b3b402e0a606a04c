package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
)

func fxQuote(from, to string, rate float64, fetchedMs int64) quote.EdgeQuote {
	return quote.EdgeQuote{
		VenueID:       "fx:wise",
		VenueKind:     quote.VenueFX,
		FromToken:     from,
		ToToken:       to,
		AmountIn:      1,
		AmountOut:     rate,
		LastUpdatedTs: fetchedMs,
		ExpiryTs:      fetchedMs + 60_000,
	}
}

func TestMergeFillsMissingPairsFromCache(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	lg := newLastGood(clk)

	lg.seed([]quote.EdgeQuote{
		fxQuote("USD", "BRL", 5.0, 900_000),
		fxQuote("USD", "MXN", 17.0, 900_000),
		fxQuote("USD", "EUR", 0.92, 900_000),
	})

	fresh := []quote.EdgeQuote{fxQuote("USD", "BRL", 5.1, clk.NowMs())}
	merged, stale := lg.merge(fresh)

	require.Len(t, merged, 3)
	assert.Equal(t, 2, stale)

	byPair := map[string]quote.EdgeQuote{}
	for _, q := range merged {
		byPair[q.PairKey()] = q
	}
	// Fresh pair wins over the cached one.
	assert.Equal(t, 5.1, byPair["USD/BRL"].AmountOut)

	// Stale pairs get a short fresh validity window but keep their
	// original fetch timestamp.
	assert.Equal(t, clk.NowMs()+60_000, byPair["USD/MXN"].ExpiryTs)
	assert.Equal(t, int64(900_000), byPair["USD/MXN"].LastUpdatedTs)
}

func TestMergeAllFresh(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	lg := newLastGood(clk)

	fresh := []quote.EdgeQuote{
		fxQuote("USD", "BRL", 5.0, clk.NowMs()),
		fxQuote("USD", "MXN", 17.0, clk.NowMs()),
	}
	merged, stale := lg.merge(fresh)
	assert.Len(t, merged, 2)
	assert.Zero(t, stale)
	assert.Equal(t, 2, lg.len())
}

func TestMergeEmptyFetchServesWholeCache(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	lg := newLastGood(clk)

	lg.seed([]quote.EdgeQuote{fxQuote("USD", "BRL", 5.0, 900_000)})
	merged, stale := lg.merge(nil)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, stale)
}

func TestMergeUpdatesCache(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	lg := newLastGood(clk)

	lg.merge([]quote.EdgeQuote{fxQuote("USD", "BRL", 5.0, clk.NowMs())})
	clk.Advance(time.Minute)
	merged, stale := lg.merge(nil)

	require.Len(t, merged, 1)
	assert.Equal(t, 1, stale)
	assert.Equal(t, clk.NowMs()+60_000, merged[0].ExpiryTs)
}
