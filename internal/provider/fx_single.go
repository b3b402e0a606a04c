package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
)

// Upstream terms allow roughly one request per second; pacing at 1.2s
// keeps a safety margin.
const singlePairInterval = 1200 * time.Millisecond

// SinglePairFXProvider fetches one pair per request against a strictly
// rate-limited feed. Pair failures are logged and skipped; the
// last-known-good cache fills the holes.
type SinglePairFXProvider struct {
	venueID  string
	client   *fxClient
	pairs    []Pair
	limiter  *rate.Limiter
	lastGood *lastGood
	clk      clock.Clock
	log      *zap.Logger
}

func NewSinglePairFXProvider(venueID, baseURL, apiKey string, pairs []Pair, clk clock.Clock, log *zap.Logger) *SinglePairFXProvider {
	return &SinglePairFXProvider{
		venueID:  venueID,
		client:   newFXClient(baseURL, apiKey),
		pairs:    pairs,
		limiter:  rate.NewLimiter(rate.Every(singlePairInterval), 1),
		lastGood: newLastGood(clk),
		clk:      clk,
		log:      log.Named("fx").With(zap.String("venue", venueID)),
	}
}

func (p *SinglePairFXProvider) VenueID() string { return p.venueID }

func (p *SinglePairFXProvider) FetchQuotes(ctx context.Context) ([]quote.EdgeQuote, error) {
	var rates []FXRate
	for _, pair := range p.pairs {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		r, err := p.client.fetchRate(ctx, pair)
		if err != nil {
			p.log.Warn("pair fetch failed", zap.String("pair", pair.String()), zap.Error(err))
			continue
		}
		rates = append(rates, r)
	}
	return p.finishCycle(rates), nil
}

func (p *SinglePairFXProvider) finishCycle(rates []FXRate) []quote.EdgeQuote {
	fresh := expandRates(p.venueID, rates, p.clk.NowMs())
	merged, stale := p.lastGood.merge(fresh)
	if stale > 0 {
		p.log.Warn("serving stale pairs from last-known-good cache",
			zap.Int("fresh", len(fresh)), zap.Int("stale", stale))
	}
	return merged
}

// SeedLastGood pre-populates the last-known-good cache.
func (p *SinglePairFXProvider) SeedLastGood(quotes []quote.EdgeQuote) {
	p.lastGood.seed(quotes)
}
