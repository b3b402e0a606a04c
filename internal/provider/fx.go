package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/lumapay/routingd/internal/quote"
)

const (
	fxRequestTimeout = 5 * time.Second
	fxQuoteValidity  = 60 * time.Second
)

// Pair is one directed currency pair an FX provider is configured for.
type Pair struct {
	From string
	To   string
}

func (p Pair) String() string { return p.From + "/" + p.To }

// FXRate is the ask/bid/mid triple an upstream feed returns for a pair.
type FXRate struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Ask  float64 `json:"ask"`
	Bid  float64 `json:"bid"`
	Mid  float64 `json:"mid"`
}

// Valid reports whether the rate can produce a usable quote.
func (r FXRate) Valid() bool {
	return r.Ask > 0 && r.Bid > 0 && r.Mid > 0
}

// Inverse synthesises the opposite direction from the bid/ask: the
// inverse ask is 1/bid and the inverse bid is 1/ask.
func (r FXRate) Inverse() FXRate {
	return FXRate{
		From: r.To,
		To:   r.From,
		Ask:  1 / r.Bid,
		Bid:  1 / r.Ask,
		Mid:  1 / r.Mid,
	}
}

// SpreadBps is the full bid/ask spread in basis points relative to mid.
func (r FXRate) SpreadBps() float64 {
	if r.Mid <= 0 {
		return 0
	}
	return (r.Ask - r.Bid) / r.Mid * 10000
}

// fxClient fetches rates from an HTTP FX feed. The two provider
// variants share it; only request batching differs.
type fxClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newFXClient(baseURL, apiKey string) *fxClient {
	return &fxClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: fxRequestTimeout},
	}
}

// fetchRate retrieves a single pair: GET {base}/rate?from=&to=.
func (c *fxClient) fetchRate(ctx context.Context, pair Pair) (FXRate, error) {
	u := fmt.Sprintf("%s/rate?from=%s&to=%s",
		c.baseURL, url.QueryEscape(pair.From), url.QueryEscape(pair.To))
	var rate FXRate
	if err := c.getJSON(ctx, u, &rate); err != nil {
		return FXRate{}, err
	}
	rate.From, rate.To = pair.From, pair.To
	if !rate.Valid() {
		return FXRate{}, errors.Errorf("feed returned unusable rate for %s", pair)
	}
	return rate, nil
}

// fetchRates retrieves all pairs in one request:
// GET {base}/rates?pairs=A/B,C/D.
func (c *fxClient) fetchRates(ctx context.Context, pairs []Pair) ([]FXRate, error) {
	q := ""
	for i, p := range pairs {
		if i > 0 {
			q += ","
		}
		q += p.String()
	}
	u := fmt.Sprintf("%s/rates?pairs=%s", c.baseURL, url.QueryEscape(q))
	var body struct {
		Rates []FXRate `json:"rates"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.Rates, nil
}

func (c *fxClient) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "fx feed request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fx feed returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding fx feed response")
	}
	return nil
}

// rateToQuote maps an FX rate onto a unit-sized edge quote. The fee is
// half the spread: crossing from mid to ask costs half of ask-bid.
func rateToQuote(venueID string, rate FXRate, nowMs int64) quote.EdgeQuote {
	return quote.EdgeQuote{
		VenueID:        venueID,
		VenueKind:      quote.VenueFX,
		FromToken:      rate.From,
		ToToken:        rate.To,
		AmountIn:       1,
		AmountOut:      rate.Ask,
		FeeBps:         int(math.Round(rate.SpreadBps() / 2)),
		ExpiryTs:       nowMs + fxQuoteValidity.Milliseconds(),
		LastUpdatedTs:  nowMs,
		SettlementMeta: quote.DefaultSettlementMeta(rate.From, rate.To),
	}
}

// expandRates turns fetched rates into edge quotes, synthesising the
// inverse edge for any pair whose opposite direction was not itself
// fetched.
func expandRates(venueID string, rates []FXRate, nowMs int64) []quote.EdgeQuote {
	fetched := make(map[string]bool, len(rates))
	for _, r := range rates {
		fetched[r.From+"/"+r.To] = true
	}
	quotes := make([]quote.EdgeQuote, 0, 2*len(rates))
	for _, r := range rates {
		quotes = append(quotes, rateToQuote(venueID, r, nowMs))
		inv := r.Inverse()
		if !fetched[inv.From+"/"+inv.To] {
			quotes = append(quotes, rateToQuote(venueID, inv, nowMs))
		}
	}
	return quotes
}
