package quote

import "strings"

// Solana mainnet; the only chain DEX steps settle on today.
const (
	SolanaChainID     = 101
	dexStepDurationMs = 30000
	dexVenuePrefix    = "dex:"
)

// RouteStep is one hop of a route: a single venue converting one token
// into the next.
type RouteStep struct {
	FromToken           string  `json:"fromToken"`
	ToToken             string  `json:"toToken"`
	VenueID             string  `json:"venueId"`
	ChainID             int     `json:"chainId"`
	AmountIn            float64 `json:"amountIn"`
	AmountOut           float64 `json:"amountOut"`
	FeeBps              int     `json:"feeBps"`
	EstimatedDurationMs int64   `json:"estimatedDurationMs"`
}

// Route is an ordered list of 1-3 hops from FromToken to ToToken.
// Adjacent steps chain exactly: steps[i].ToToken == steps[i+1].FromToken
// and steps[i+1].AmountIn == steps[i].AmountOut.
type Route struct {
	FromToken     string      `json:"fromToken"`
	ToToken       string      `json:"toToken"`
	Steps         []RouteStep `json:"steps"`
	TotalIn       float64     `json:"totalIn"`
	TotalOut      float64     `json:"totalOut"`
	EffectiveRate float64     `json:"effectiveRate"`
	TotalFeesBps  int         `json:"totalFeesBps"`
	Confidence    float64     `json:"confidence"`
	Timestamp     int64       `json:"timestamp"`
}

// IsDEXVenue reports whether a venue identifier names an on-chain venue.
func IsDEXVenue(venueID string) bool {
	return strings.HasPrefix(venueID, dexVenuePrefix)
}

// NewRouteStep maps an edge quote and an entering amount onto a route
// step. DEX venues settle on Solana and carry a fixed duration estimate;
// off-chain venues report no duration of their own.
func NewRouteStep(q *EdgeQuote, amountIn float64) RouteStep {
	step := RouteStep{
		FromToken: q.FromToken,
		ToToken:   q.ToToken,
		VenueID:   q.VenueID,
		AmountIn:  amountIn,
		AmountOut: q.Output(amountIn),
		FeeBps:    q.FeeBps,
	}
	if IsDEXVenue(q.VenueID) {
		step.ChainID = SolanaChainID
		step.EstimatedDurationMs = dexStepDurationMs
	}
	return step
}

// NewRoute assembles a route from chained steps. The caller guarantees
// the steps already chain; aggregates are derived here.
func NewRoute(steps []RouteStep, nowMs int64) *Route {
	if len(steps) == 0 {
		return nil
	}
	totalIn := steps[0].AmountIn
	totalOut := steps[len(steps)-1].AmountOut
	feeBps := 0
	for _, s := range steps {
		// Sum of per-step fees. A lower-bound telemetry summary, never
		// re-applied to output.
		feeBps += s.FeeBps
	}
	r := &Route{
		FromToken:    steps[0].FromToken,
		ToToken:      steps[len(steps)-1].ToToken,
		Steps:        steps,
		TotalIn:      totalIn,
		TotalOut:     totalOut,
		TotalFeesBps: feeBps,
		Confidence:   1,
		Timestamp:    nowMs,
	}
	if totalIn > 0 {
		r.EffectiveRate = totalOut / totalIn
	}
	return r
}

// HasOTCStep reports whether any hop crosses an off-chain venue.
func (r *Route) HasOTCStep() bool {
	for _, s := range r.Steps {
		if !IsDEXVenue(s.VenueID) {
			return true
		}
	}
	return false
}

// HasDEXStep reports whether any hop crosses an on-chain venue.
func (r *Route) HasDEXStep() bool {
	for _, s := range r.Steps {
		if IsDEXVenue(s.VenueID) {
			return true
		}
	}
	return false
}
