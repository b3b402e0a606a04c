package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

func testRoute(venueID string) *quote.Route {
	steps := []quote.RouteStep{{
		FromToken: "BRL",
		ToToken:   "USDC",
		VenueID:   venueID,
		AmountIn:  10000,
		AmountOut: 1992,
		FeeBps:    40,
	}}
	return quote.NewRoute(steps, 0)
}

func newTestQuotes(t *testing.T) (*Quotes, *kvstore.MemoryStore, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	store := kvstore.NewMemoryStore(clk)
	return NewQuotes(store, clk, zap.NewNop(), nil), store, clk
}

func storeTestProvisional(t *testing.T, q *Quotes) *ProvisionalQuote {
	t.Helper()
	prov, err := q.StoreProvisional(context.Background(),
		testRoute("otc:alpha"), nil, 10000, 1992, 1960, 40, ScoringMeta{Confidence: 0.9}, QuoteOTC)
	require.NoError(t, err)
	return prov
}

func TestStoreAndGetProvisional(t *testing.T) {
	q, _, clk := newTestQuotes(t)
	prov := storeTestProvisional(t, q)

	assert.NotEmpty(t, prov.QuoteID)
	assert.Equal(t, clk.NowMs()+15_000, prov.ExpiryTs)

	got, err := q.GetProvisional(context.Background(), prov.QuoteID)
	require.NoError(t, err)
	assert.Equal(t, prov.QuoteID, got.QuoteID)
	assert.Equal(t, 1960.0, got.NetAmountOut)
}

func TestProvisionalExpires(t *testing.T) {
	q, _, clk := newTestQuotes(t)
	prov := storeTestProvisional(t, q)

	clk.Advance(16 * time.Second)
	_, err := q.GetProvisional(context.Background(), prov.QuoteID)
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}

func TestReservePromotesAndDeletesProvisional(t *testing.T) {
	ctx := context.Background()
	q, store, clk := newTestQuotes(t)
	prov := storeTestProvisional(t, q)

	reserved, err := q.Reserve(ctx, prov.QuoteID, "client-1")
	require.NoError(t, err)
	assert.NotEmpty(t, reserved.ReservationID)
	assert.Equal(t, "client-1", reserved.ReservedByClient)
	assert.Equal(t, clk.NowMs()+300_000, reserved.ReservedUntilTs)

	// The provisional key is gone; the reservation is addressable.
	_, err = store.Get(ctx, provisionalKeyPrefix+prov.QuoteID)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	got, err := q.GetReserved(ctx, prov.QuoteID)
	require.NoError(t, err)
	assert.Equal(t, reserved.ReservationID, got.ReservationID)
}

func TestReserveRace(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQuotes(t)
	prov := storeTestProvisional(t, q)

	_, err := q.Reserve(ctx, prov.QuoteID, "client-1")
	require.NoError(t, err)

	// The provisional is gone, so the loser sees not-found.
	_, err = q.Reserve(ctx, prov.QuoteID, "client-2")
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}

func TestReserveUnknownQuote(t *testing.T) {
	q, _, _ := newTestQuotes(t)
	_, err := q.Reserve(context.Background(), "no-such-quote", "client-1")
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}

func TestReservedExpires(t *testing.T) {
	ctx := context.Background()
	q, _, clk := newTestQuotes(t)
	prov := storeTestProvisional(t, q)

	_, err := q.Reserve(ctx, prov.QuoteID, "client-1")
	require.NoError(t, err)

	clk.Advance(301 * time.Second)
	_, err = q.GetReserved(ctx, prov.QuoteID)
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}

type stubOTCReserver struct {
	meta *OTCReservationMeta
	err  error

	calls int
}

func (s *stubOTCReserver) Reserve(ctx context.Context, q *ProvisionalQuote, clientID string) (*OTCReservationMeta, error) {
	s.calls++
	return s.meta, s.err
}

func TestReserveCallsOTCDesk(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	store := kvstore.NewMemoryStore(clk)
	desk := &stubOTCReserver{meta: &OTCReservationMeta{OTCReservationID: "desk-42"}}
	q := NewQuotes(store, clk, zap.NewNop(), desk)

	prov := storeTestProvisional(t, q)
	reserved, err := q.Reserve(ctx, prov.QuoteID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 1, desk.calls)
	require.NotNil(t, reserved.OTCReservation)
	assert.Equal(t, "desk-42", reserved.OTCReservation.OTCReservationID)

	// The persisted reservation carries the desk meta too.
	got, err := q.GetReserved(ctx, prov.QuoteID)
	require.NoError(t, err)
	require.NotNil(t, got.OTCReservation)
	assert.Equal(t, "desk-42", got.OTCReservation.OTCReservationID)
}

func TestReserveSurvivesOTCDeskFailure(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	store := kvstore.NewMemoryStore(clk)
	desk := &stubOTCReserver{err: errors.New("desk unreachable")}
	q := NewQuotes(store, clk, zap.NewNop(), desk)

	prov := storeTestProvisional(t, q)
	reserved, err := q.Reserve(ctx, prov.QuoteID, "client-1")
	require.NoError(t, err)
	assert.Nil(t, reserved.OTCReservation)
}
