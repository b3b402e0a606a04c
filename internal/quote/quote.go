// Package quote defines the pricing primitives shared across the engine:
// the per-venue edge quote and the multi-hop route assembled from edges.
package quote

import (
	"errors"
	"fmt"

	"github.com/lumapay/routingd/internal/token"
)

// VenueKind classifies the venue an edge quote came from.
type VenueKind string

const (
	VenueOTC VenueKind = "OTC"
	VenueDEX VenueKind = "DEX"
	VenueFX  VenueKind = "FX"
)

var (
	ErrInvalidAmounts = errors.New("quote: amountIn and amountOut must be positive")
	ErrInvalidExpiry  = errors.New("quote: expiryTs must be after lastUpdatedTs")
	ErrInvalidFee     = errors.New("quote: feeBps out of range")
)

// SettlementMeta carries the settlement characteristics of an OTC/FX
// venue, used by the settlement scorer.
type SettlementMeta struct {
	SettlementDays      float64  `json:"settlementDays"`
	CounterpartyRisk    float64  `json:"counterpartyRisk"`
	SupportsReservation bool     `json:"supportsReservation"`
	PaymentMethods      []string `json:"paymentMethods,omitempty"`
}

// EdgeQuote is one venue's price for one directed token pair at a
// reference size. AmountIn/AmountOut fix the reference size and its
// output; the rate scales linearly up to MaxAmountIn.
type EdgeQuote struct {
	VenueID        string          `json:"venueId"`
	VenueKind      VenueKind       `json:"venueKind"`
	FromToken      string          `json:"fromToken"`
	ToToken        string          `json:"toToken"`
	AmountIn       float64         `json:"amountIn"`
	AmountOut      float64         `json:"amountOut"`
	MaxAmountIn    float64         `json:"maxAmountIn,omitempty"`
	FeeBps         int             `json:"feeBps,omitempty"`
	ExpiryTs       int64           `json:"expiryTs"`
	LastUpdatedTs  int64           `json:"lastUpdatedTs"`
	DepositAddress string          `json:"depositAddress,omitempty"`
	SettlementMeta *SettlementMeta `json:"settlementMeta,omitempty"`
}

// Validate checks the structural invariants of an edge quote.
func (q *EdgeQuote) Validate() error {
	if q.AmountIn <= 0 || q.AmountOut <= 0 {
		return ErrInvalidAmounts
	}
	if q.ExpiryTs <= q.LastUpdatedTs {
		return ErrInvalidExpiry
	}
	if q.FeeBps < 0 || q.FeeBps > 10000 {
		return ErrInvalidFee
	}
	return nil
}

// Rate is the reference exchange rate AmountOut/AmountIn.
func (q *EdgeQuote) Rate() float64 {
	if q.AmountIn <= 0 {
		return 0
	}
	return q.AmountOut / q.AmountIn
}

// Output computes the net output for x units entering this edge:
// gross = x * rate, minus the venue fee when one is quoted.
func (q *EdgeQuote) Output(x float64) float64 {
	gross := x * q.Rate()
	if q.FeeBps > 0 {
		return gross - gross*float64(q.FeeBps)/10000
	}
	return gross
}

// Live reports whether the quote is usable at nowMs with a minimum
// remaining validity of minExpiryMs.
func (q *EdgeQuote) Live(nowMs, minExpiryMs int64) bool {
	return q.ExpiryTs > nowMs+minExpiryMs
}

// PairKey is the merge key used by provider last-known-good caches.
func (q *EdgeQuote) PairKey() string {
	return q.FromToken + "/" + q.ToToken
}

func (q *EdgeQuote) String() string {
	return fmt.Sprintf("%s %s->%s %.6f@%d", q.VenueID, q.FromToken, q.ToToken, q.Rate(), q.ExpiryTs)
}

// DefaultSettlementMeta derives settlement characteristics for a pair
// when the venue does not supply them. Stablecoin legs settle in half a
// day at negligible risk; emerging-market fiat legs take a full day.
func DefaultSettlementMeta(from, to string) *SettlementMeta {
	switch {
	case token.IsStablecoin(from) || token.IsStablecoin(to):
		return &SettlementMeta{
			SettlementDays:      0.5,
			CounterpartyRisk:    0.0001,
			SupportsReservation: false,
			PaymentMethods:      []string{token.MethodBankTransfer},
		}
	case token.IsEmergingFiat(from) || token.IsEmergingFiat(to):
		return &SettlementMeta{
			SettlementDays:      1,
			CounterpartyRisk:    0.001,
			SupportsReservation: false,
			PaymentMethods:      []string{token.MethodBankTransfer},
		}
	default:
		return &SettlementMeta{
			SettlementDays:      0.5,
			CounterpartyRisk:    0.0005,
			SupportsReservation: false,
			PaymentMethods:      []string{token.MethodBankTransfer},
		}
	}
}
