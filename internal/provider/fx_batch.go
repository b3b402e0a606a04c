package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
)

// BatchFXProvider fetches every configured pair in a single request.
// A failed request degrades to the last-known-good snapshot; only a
// failure with an empty cache yields an empty snapshot.
type BatchFXProvider struct {
	venueID  string
	client   *fxClient
	pairs    []Pair
	lastGood *lastGood
	clk      clock.Clock
	log      *zap.Logger
}

func NewBatchFXProvider(venueID, baseURL, apiKey string, pairs []Pair, clk clock.Clock, log *zap.Logger) *BatchFXProvider {
	return &BatchFXProvider{
		venueID:  venueID,
		client:   newFXClient(baseURL, apiKey),
		pairs:    pairs,
		lastGood: newLastGood(clk),
		clk:      clk,
		log:      log.Named("fx").With(zap.String("venue", venueID)),
	}
}

func (p *BatchFXProvider) VenueID() string { return p.venueID }

func (p *BatchFXProvider) FetchQuotes(ctx context.Context) ([]quote.EdgeQuote, error) {
	rates, err := p.client.fetchRates(ctx, p.pairs)
	if err != nil {
		if p.lastGood.len() == 0 {
			p.log.Warn("batch fetch failed with empty cache", zap.Error(err))
			return nil, nil
		}
		p.log.Warn("batch fetch failed, serving last-known-good snapshot", zap.Error(err))
		merged, _ := p.lastGood.merge(nil)
		return merged, nil
	}

	usable := rates[:0]
	for _, r := range rates {
		if r.Valid() {
			usable = append(usable, r)
		} else {
			p.log.Warn("dropping unusable rate", zap.String("pair", r.From+"/"+r.To))
		}
	}

	fresh := expandRates(p.venueID, usable, p.clk.NowMs())
	merged, stale := p.lastGood.merge(fresh)
	if stale > 0 {
		p.log.Warn("serving stale pairs from last-known-good cache",
			zap.Int("fresh", len(fresh)), zap.Int("stale", stale))
	}
	return merged, nil
}

// SeedLastGood pre-populates the last-known-good cache.
func (p *BatchFXProvider) SeedLastGood(quotes []quote.EdgeQuote) {
	p.lastGood.seed(quotes)
}
