package provider

import (
	"context"
	"time"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
)

// OTC quotes stay valid for 30s between refreshes; DEX pool prices move
// too fast to trust beyond 5s.
const (
	staticOTCValidity = 30 * time.Second
	staticDEXValidity = 5 * time.Second
)

// StaticEntry is one hand-curated quote in a static provider's set.
// Expiry is stamped per snapshot, so entries omit it.
type StaticEntry struct {
	VenueID        string
	VenueKind      quote.VenueKind
	FromToken      string
	ToToken        string
	AmountIn       float64
	AmountOut      float64
	MaxAmountIn    float64
	FeeBps         int
	DepositAddress string
	SettlementMeta *quote.SettlementMeta
}

// StaticProvider serves a fixed set of quotes, re-stamped with fresh
// timestamps on every snapshot. Used for pinned OTC desks and as the
// mock provider in development and tests.
type StaticProvider struct {
	venueID string
	entries []StaticEntry
	clk     clock.Clock
}

func NewStaticProvider(venueID string, entries []StaticEntry, clk clock.Clock) *StaticProvider {
	return &StaticProvider{venueID: venueID, entries: entries, clk: clk}
}

func (p *StaticProvider) VenueID() string { return p.venueID }

func (p *StaticProvider) FetchQuotes(ctx context.Context) ([]quote.EdgeQuote, error) {
	now := p.clk.NowMs()
	quotes := make([]quote.EdgeQuote, 0, len(p.entries))
	for _, e := range p.entries {
		validity := staticOTCValidity
		if e.VenueKind == quote.VenueDEX {
			validity = staticDEXValidity
		}
		meta := e.SettlementMeta
		if meta == nil && e.VenueKind != quote.VenueDEX {
			meta = quote.DefaultSettlementMeta(e.FromToken, e.ToToken)
		}
		quotes = append(quotes, quote.EdgeQuote{
			VenueID:        e.VenueID,
			VenueKind:      e.VenueKind,
			FromToken:      e.FromToken,
			ToToken:        e.ToToken,
			AmountIn:       e.AmountIn,
			AmountOut:      e.AmountOut,
			MaxAmountIn:    e.MaxAmountIn,
			FeeBps:         e.FeeBps,
			ExpiryTs:       now + validity.Milliseconds(),
			LastUpdatedTs:  now,
			DepositAddress: e.DepositAddress,
			SettlementMeta: meta,
		})
	}
	return quotes, nil
}
