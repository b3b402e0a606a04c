package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
)

const dexQuoteValidity = 5 * time.Second

// dexPool is one AMM pool price from the aggregator.
type dexPool struct {
	AMM       string  `json:"amm"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	InAmount  float64 `json:"inAmount"`
	OutAmount float64 `json:"outAmount"`
	FeeBps    int     `json:"feeBps"`
	MaxIn     float64 `json:"maxIn,omitempty"`
}

// DEXProvider reads stablecoin pool prices from an on-chain price
// aggregator. Venue IDs carry the "dex:" prefix the router keys chain
// metadata off.
type DEXProvider struct {
	venueID string
	baseURL string
	pairs   []Pair
	http    *http.Client
	clk     clock.Clock
	log     *zap.Logger
}

func NewDEXProvider(venueID, baseURL string, pairs []Pair, clk clock.Clock, log *zap.Logger) *DEXProvider {
	return &DEXProvider{
		venueID: venueID,
		baseURL: baseURL,
		pairs:   pairs,
		http:    &http.Client{Timeout: fxRequestTimeout},
		clk:     clk,
		log:     log.Named("dex").With(zap.String("venue", venueID)),
	}
}

func (p *DEXProvider) VenueID() string { return p.venueID }

func (p *DEXProvider) FetchQuotes(ctx context.Context) ([]quote.EdgeQuote, error) {
	q := ""
	for i, pair := range p.pairs {
		if i > 0 {
			q += ","
		}
		q += pair.String()
	}
	u := fmt.Sprintf("%s/pools?pairs=%s", p.baseURL, url.QueryEscape(q))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "dex aggregator request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("dex aggregator returned status %d", resp.StatusCode)
	}

	var body struct {
		Pools []dexPool `json:"pools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decoding dex aggregator response")
	}

	nowMs := p.clk.NowMs()
	quotes := make([]quote.EdgeQuote, 0, len(body.Pools))
	for _, pool := range body.Pools {
		if pool.InAmount <= 0 || pool.OutAmount <= 0 {
			p.log.Warn("dropping unusable pool price",
				zap.String("pair", pool.From+"/"+pool.To), zap.String("amm", pool.AMM))
			continue
		}
		quotes = append(quotes, quote.EdgeQuote{
			VenueID:       fmt.Sprintf("dex:%s:%s", pool.AMM, p.venueID),
			VenueKind:     quote.VenueDEX,
			FromToken:     pool.From,
			ToToken:       pool.To,
			AmountIn:      pool.InAmount,
			AmountOut:     pool.OutAmount,
			MaxAmountIn:   pool.MaxIn,
			FeeBps:        pool.FeeBps,
			ExpiryTs:      nowMs + dexQuoteValidity.Milliseconds(),
			LastUpdatedTs: nowMs,
		})
	}
	return quotes, nil
}
