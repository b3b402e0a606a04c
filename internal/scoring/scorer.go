// Package scoring discounts a route's gross output for settlement-delay
// risk and counterparty risk, producing the net output quotes are ranked
// by.
package scoring

import (
	"math"

	"github.com/lumapay/routingd/internal/quote"
)

// Params are the scoring tables. They are deployment configuration, not
// code: the volatility table enumerates recognised currency pairs keyed
// "FROM/TO".
type Params struct {
	// DailyVolatility maps a currency pair to its daily volatility.
	DailyVolatility map[string]float64
	// DefaultDailyVolatility applies to pairs missing from the table.
	DefaultDailyVolatility float64
	// VenueCounterpartyRisk overrides per-venue default risk.
	VenueCounterpartyRisk map[string]float64
	// DefaultCounterpartyRisk applies when neither the quote nor the
	// venue table carries a risk figure.
	DefaultCounterpartyRisk float64
	// RiskFactor scales the time penalty. 1 unless tuned.
	RiskFactor float64
}

// DefaultParams returns the stock tables for the supported corridors.
func DefaultParams() Params {
	return Params{
		DailyVolatility: map[string]float64{
			"BRL/USDC": 0.012,
			"USDC/BRL": 0.012,
			"MXN/USDC": 0.010,
			"USDC/MXN": 0.010,
			"NGN/USDC": 0.025,
			"USDC/NGN": 0.025,
			"USDC/EUR": 0.004,
			"EUR/USDC": 0.004,
			"EURC/EUR": 0.001,
			"EUR/EURC": 0.001,
			"USDC/USD": 0.0005,
			"USD/USDC": 0.0005,
		},
		DefaultDailyVolatility:  0.005,
		VenueCounterpartyRisk:   map[string]float64{},
		DefaultCounterpartyRisk: 0.001,
		RiskFactor:              1,
	}
}

// Result is the scoring outcome for one candidate route.
type Result struct {
	NetOutput        float64 `json:"netOutput"`
	SettlementDays   float64 `json:"settlementDays"`
	CounterpartyRisk float64 `json:"counterpartyRisk"`
	TimePenalty      float64 `json:"timePenalty"`
	Confidence       float64 `json:"confidence"`
}

// Scorer applies the settlement model to candidate routes.
type Scorer struct {
	params Params
}

func NewScorer(params Params) *Scorer {
	if params.RiskFactor == 0 {
		params.RiskFactor = 1
	}
	if params.DefaultDailyVolatility == 0 {
		params.DefaultDailyVolatility = 0.005
	}
	if params.DefaultCounterpartyRisk == 0 {
		params.DefaultCounterpartyRisk = 0.001
	}
	return &Scorer{params: params}
}

// Score discounts grossOutput for the route (fromToken -> toToken) given
// the participating venue quotes.
//
// The time penalty scales with sqrt(settlementDays): Brownian-motion
// style growth of FX exposure over the holding period.
func (s *Scorer) Score(grossOutput float64, fromToken, toToken string, quotes []quote.EdgeQuote) Result {
	settlementDays := 0.0
	riskSum := 0.0
	for i := range quotes {
		q := &quotes[i]
		if q.SettlementMeta != nil && q.SettlementMeta.SettlementDays > settlementDays {
			settlementDays = q.SettlementMeta.SettlementDays
		}
		riskSum += s.counterpartyRisk(q)
	}
	avgRisk := s.params.DefaultCounterpartyRisk
	if len(quotes) > 0 {
		avgRisk = riskSum / float64(len(quotes))
	}

	dailyVol, ok := s.params.DailyVolatility[fromToken+"/"+toToken]
	if !ok {
		dailyVol = s.params.DefaultDailyVolatility
	}

	timePenalty := grossOutput * dailyVol * math.Sqrt(settlementDays) * s.params.RiskFactor
	counterpartyDiscount := grossOutput * avgRisk

	net := grossOutput - timePenalty - counterpartyDiscount
	if net < 0 {
		net = 0
	}

	return Result{
		NetOutput:        net,
		SettlementDays:   settlementDays,
		CounterpartyRisk: avgRisk,
		TimePenalty:      timePenalty,
		Confidence:       confidence(settlementDays, avgRisk),
	}
}

func (s *Scorer) counterpartyRisk(q *quote.EdgeQuote) float64 {
	if q.SettlementMeta != nil && q.SettlementMeta.CounterpartyRisk > 0 {
		return q.SettlementMeta.CounterpartyRisk
	}
	if r, ok := s.params.VenueCounterpartyRisk[q.VenueID]; ok {
		return r
	}
	return s.params.DefaultCounterpartyRisk
}

// confidence degrades with settlement delay and counterparty risk but
// never drops below 0.5.
func confidence(settlementDays, avgRisk float64) float64 {
	c := 1 - settlementDays*0.1 - avgRisk*10
	if c < 0.5 {
		return 0.5
	}
	if c > 1 {
		return 1
	}
	return c
}
