package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuote() EdgeQuote {
	return EdgeQuote{
		VenueID:       "otc:alpha",
		VenueKind:     VenueOTC,
		FromToken:     "BRL",
		ToToken:       "USDC",
		AmountIn:      10000,
		AmountOut:     2000,
		FeeBps:        40,
		LastUpdatedTs: 1000,
		ExpiryTs:      31000,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EdgeQuote)
		wantErr error
	}{
		{"valid", func(q *EdgeQuote) {}, nil},
		{"zero amount in", func(q *EdgeQuote) { q.AmountIn = 0 }, ErrInvalidAmounts},
		{"negative amount out", func(q *EdgeQuote) { q.AmountOut = -1 }, ErrInvalidAmounts},
		{"expiry before update", func(q *EdgeQuote) { q.ExpiryTs = 500 }, ErrInvalidExpiry},
		{"expiry equals update", func(q *EdgeQuote) { q.ExpiryTs = q.LastUpdatedTs }, ErrInvalidExpiry},
		{"fee too high", func(q *EdgeQuote) { q.FeeBps = 10001 }, ErrInvalidFee},
		{"negative fee", func(q *EdgeQuote) { q.FeeBps = -1 }, ErrInvalidFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuote()
			tt.mutate(&q)
			err := q.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOutputAppliesFee(t *testing.T) {
	q := validQuote()
	// rate 0.2, fee 40bps: 5000 * 0.2 * (1 - 0.004) = 996
	assert.InDelta(t, 996.0, q.Output(5000), 1e-9)

	q.FeeBps = 0
	assert.InDelta(t, 1000.0, q.Output(5000), 1e-9)
}

func TestLive(t *testing.T) {
	q := validQuote()
	assert.True(t, q.Live(1000, 0))
	assert.True(t, q.Live(30000, 500))
	assert.False(t, q.Live(31000, 0))
	assert.False(t, q.Live(26000, 5000))
}

func TestPairKey(t *testing.T) {
	q := validQuote()
	assert.Equal(t, "BRL/USDC", q.PairKey())
}

func TestDefaultSettlementMeta(t *testing.T) {
	stable := DefaultSettlementMeta("BRL", "USDC")
	assert.Equal(t, 0.5, stable.SettlementDays)
	assert.Equal(t, 0.0001, stable.CounterpartyRisk)

	fiat := DefaultSettlementMeta("BRL", "MXN")
	assert.Equal(t, 1.0, fiat.SettlementDays)
	assert.Equal(t, 0.001, fiat.CounterpartyRisk)

	other := DefaultSettlementMeta("EUR", "USD")
	assert.Equal(t, 0.5, other.SettlementDays)
	assert.Equal(t, 0.0005, other.CounterpartyRisk)
}

func TestNewRouteStepDEX(t *testing.T) {
	q := validQuote()
	q.VenueID = "dex:orca:pool1"
	q.VenueKind = VenueDEX

	step := NewRouteStep(&q, 10000)
	assert.Equal(t, SolanaChainID, step.ChainID)
	assert.Equal(t, int64(30000), step.EstimatedDurationMs)

	otc := validQuote()
	step = NewRouteStep(&otc, 10000)
	assert.Zero(t, step.ChainID)
	assert.Zero(t, step.EstimatedDurationMs)
}

func TestNewRouteAggregates(t *testing.T) {
	steps := []RouteStep{
		{FromToken: "BRL", ToToken: "USDC", VenueID: "otc:a", AmountIn: 10000, AmountOut: 1992, FeeBps: 40},
		{FromToken: "USDC", ToToken: "EURC", VenueID: "dex:orca", AmountIn: 1992, AmountOut: 1826, FeeBps: 30},
	}
	r := NewRoute(steps, 5000)
	require.NotNil(t, r)

	assert.Equal(t, "BRL", r.FromToken)
	assert.Equal(t, "EURC", r.ToToken)
	assert.Equal(t, 10000.0, r.TotalIn)
	assert.Equal(t, 1826.0, r.TotalOut)
	assert.Equal(t, 70, r.TotalFeesBps)
	assert.InDelta(t, 0.1826, r.EffectiveRate, 1e-9)
	assert.Equal(t, int64(5000), r.Timestamp)

	assert.True(t, r.HasOTCStep())
	assert.True(t, r.HasDEXStep())

	assert.Nil(t, NewRoute(nil, 5000))
}

func TestIsDEXVenue(t *testing.T) {
	assert.True(t, IsDEXVenue("dex:orca:pool"))
	assert.False(t, IsDEXVenue("otc:alpha"))
	assert.False(t, IsDEXVenue("fx:wise"))
}
