package pipeline

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/cache"
	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/router"
	"github.com/lumapay/routingd/internal/scoring"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

type serviceFixture struct {
	service    *Service
	executions *Executions
	cache      *cache.EdgeCache
	clk        *clock.Manual
	ctx        context.Context
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clk := clock.NewManual(time.UnixMilli(1_000_000))
	store := kvstore.NewMemoryStore(clk)
	log := zap.NewNop()

	ec := cache.NewEdgeCache(store, clk, log)
	rt := router.New(ec, clk, log)
	scorer := scoring.NewScorer(scoring.DefaultParams())
	quotes := NewQuotes(store, clk, log, nil)
	deposits := NewDeposits(store, clk, log, testDepositConfig())
	executions := NewExecutions(store, clk, log, nil)
	driver := NewDriver(executions, &MockStepExecutor{}, log)

	return &serviceFixture{
		service:    NewService(rt, scorer, quotes, deposits, executions, driver, clk, log),
		executions: executions,
		cache:      ec,
		clk:        clk,
		ctx:        context.Background(),
	}
}

func (f *serviceFixture) seedOTC(t *testing.T, venueID, from, to string, amountIn, amountOut float64, feeBps int) {
	t.Helper()
	now := f.clk.NowMs()
	q := quote.EdgeQuote{
		VenueID:        venueID,
		VenueKind:      quote.VenueOTC,
		FromToken:      from,
		ToToken:        to,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		FeeBps:         feeBps,
		LastUpdatedTs:  now,
		ExpiryTs:       now + 30_000,
		SettlementMeta: quote.DefaultSettlementMeta(from, to),
	}
	require.NoError(t, f.cache.PutQuote(f.ctx, &q))
}

func TestQuoteScoresAndStoresProvisional(t *testing.T) {
	f := newServiceFixture(t)
	f.seedOTC(t, "otc:x", "USDC", "EUR", 1000, 920, 30)

	options, err := f.service.Quote(f.ctx, QuoteRequest{AmountIn: 1000, FromToken: "USDC", ToToken: "EUR"})
	require.NoError(t, err)
	require.Len(t, options, 1)

	opt := options[0]
	assert.InDelta(t, 917.24, opt.AmountOut, 0.01)
	assert.Less(t, opt.NetAmountOut, opt.AmountOut)
	assert.Equal(t, QuoteOTC, opt.Type)
	assert.Greater(t, opt.Confidence, 0.0)
	assert.Greater(t, opt.ScoringMeta.TimePenalty, 0.0)
	assert.NotEmpty(t, opt.QuoteID)
}

func TestQuoteNoRouteYieldsEmptySlice(t *testing.T) {
	f := newServiceFixture(t)

	options, err := f.service.Quote(f.ctx, QuoteRequest{AmountIn: 1000, FromToken: "GBP", ToToken: "JPY"})
	require.NoError(t, err)
	assert.NotNil(t, options)
	assert.Empty(t, options)
}

func TestQuoteDepositExecuteLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	f.seedOTC(t, "otc:1", "BRL", "USDC", 10000, 2000, 40)
	f.seedOTC(t, "otc:2", "USDC", "EUR", 2000, 1840, 30)

	options, err := f.service.Quote(f.ctx, QuoteRequest{AmountIn: 10000, FromToken: "BRL", ToToken: "EUR", ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, options, 1)

	result, err := f.service.Execute(f.ctx, options[0].QuoteID, "c1")
	require.NoError(t, err)
	assert.Equal(t, ExecPendingApproval, result.Status)
	assert.Regexp(t, regexp.MustCompile(`^r[a-z0-9-]{8}-c1$`), result.DepositInstructions.PaymentReference)
	assert.Equal(t, 10000.0, result.DepositInstructions.Amount)

	// A second reservation attempt on the same quote loses.
	_, err = f.service.Execute(f.ctx, options[0].QuoteID, "c2")
	assert.ErrorIs(t, err, ErrQuoteNotFound)

	dep := f.service.ConfirmDeposit(f.ctx, result.DepositInstructions.PaymentReference, 10000, "bank-tx-1")
	require.True(t, dep.Success)
	assert.NotEmpty(t, dep.DepositID)
	require.NotEmpty(t, dep.ExecutionID)

	final := waitForStatus(t, f.executions, dep.ExecutionID, ExecCompleted)
	assert.Len(t, final.TransactionHashes, len(final.Route.Steps))
}

func TestConfirmDepositIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	f.seedOTC(t, "otc:x", "USDC", "EUR", 1000, 920, 30)

	options, err := f.service.Quote(f.ctx, QuoteRequest{AmountIn: 1000, FromToken: "USDC", ToToken: "EUR"})
	require.NoError(t, err)
	result, err := f.service.Execute(f.ctx, options[0].QuoteID, "c1")
	require.NoError(t, err)

	ref := result.DepositInstructions.PaymentReference
	first := f.service.ConfirmDeposit(f.ctx, ref, 1000, "tx-1")
	require.True(t, first.Success)

	waitForStatus(t, f.executions, first.ExecutionID, ExecCompleted)

	// Replayed webhook: still success, same ids, no state regression.
	second := f.service.ConfirmDeposit(f.ctx, ref, 1000, "tx-1")
	assert.True(t, second.Success)
	assert.Equal(t, first.DepositID, second.DepositID)
	assert.Equal(t, first.ExecutionID, second.ExecutionID)

	record, err := f.executions.Get(f.ctx, first.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecCompleted, record.Status)
}

func TestConfirmDepositUnknownReference(t *testing.T) {
	f := newServiceFixture(t)
	res := f.service.ConfirmDeposit(f.ctx, "r00000000-cx", 500, "tx-9")
	assert.False(t, res.Success)
}

func TestExecuteExpiredQuote(t *testing.T) {
	f := newServiceFixture(t)
	f.seedOTC(t, "otc:x", "USDC", "EUR", 1000, 920, 30)

	options, err := f.service.Quote(f.ctx, QuoteRequest{AmountIn: 1000, FromToken: "USDC", ToToken: "EUR"})
	require.NoError(t, err)

	f.clk.Advance(16 * time.Second)
	_, err = f.service.Execute(f.ctx, options[0].QuoteID, "c1")
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}

func TestStatusUnknownExecution(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Status(f.ctx, "no-such-execution")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}
