// Package cache implements the edge cache: the shared keyspace of live
// per-venue quotes the router treats as its routing graph.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

// Two key families feed the router. The "solana" literal is a
// design-time namespace for the single chain DEX edges settle on.
const (
	otcKeyPrefix = "otc:quotes"
	dexKeyPrefix = "routing:edge:solana"
)

// minQuoteTTL floors the stored TTL so a quote written at the edge of
// its validity is still readable for a moment.
const minQuoteTTL = time.Second

// EdgeCache stores edge quotes in the shared key-value store with a TTL
// derived from each quote's expiry.
type EdgeCache struct {
	store kvstore.Store
	clk   clock.Clock
	log   *zap.Logger
}

func NewEdgeCache(store kvstore.Store, clk clock.Clock, log *zap.Logger) *EdgeCache {
	return &EdgeCache{store: store, clk: clk, log: log.Named("edgecache")}
}

// Key returns the cache key for a quote: DEX edges live under the
// routing:edge family, OTC and FX edges under otc:quotes.
func Key(q *quote.EdgeQuote) string {
	prefix := otcKeyPrefix
	if q.VenueKind == quote.VenueDEX {
		prefix = dexKeyPrefix
	}
	return fmt.Sprintf("%s:%s:%s:%s", prefix, q.FromToken, q.ToToken, q.VenueID)
}

// PutQuote stores one quote with TTL max(1s, expiryTs-now).
func (c *EdgeCache) PutQuote(ctx context.Context, q *quote.EdgeQuote) error {
	item, err := c.item(q)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, item.Key, item.Value, item.TTL)
}

// PutQuoteBatch stores quotes through one pipelined write. Invalid
// quotes are skipped with a warning rather than failing the batch.
func (c *EdgeCache) PutQuoteBatch(ctx context.Context, quotes []quote.EdgeQuote) error {
	items := make([]kvstore.Item, 0, len(quotes))
	for i := range quotes {
		item, err := c.item(&quotes[i])
		if err != nil {
			c.log.Warn("skipping invalid quote",
				zap.String("venue", quotes[i].VenueID),
				zap.String("pair", quotes[i].PairKey()),
				zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return c.store.MSet(ctx, items)
}

// ScanByPair returns every cache key holding a quote for (from, to),
// across both key families.
func (c *EdgeCache) ScanByPair(ctx context.Context, from, to string) ([]string, error) {
	var keys []string
	for _, prefix := range []string{otcKeyPrefix, dexKeyPrefix} {
		pattern := fmt.Sprintf("%s:%s:%s:*", prefix, from, to)
		found, err := c.store.Scan(ctx, pattern)
		if err != nil {
			return nil, err
		}
		keys = append(keys, found...)
	}
	return keys, nil
}

// GetCachedByPair returns the live quotes cached for (from, to).
// Records that fail to parse are dropped with a warning; a corrupt
// record must not poison the whole pair.
func (c *EdgeCache) GetCachedByPair(ctx context.Context, from, to string) ([]quote.EdgeQuote, error) {
	keys, err := c.ScanByPair(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := c.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	nowMs := c.clk.NowMs()
	quotes := make([]quote.EdgeQuote, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		var q quote.EdgeQuote
		if err := json.Unmarshal([]byte(*v), &q); err != nil {
			c.log.Warn("dropping unparseable cached quote",
				zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		if !q.Live(nowMs, 0) {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (c *EdgeCache) item(q *quote.EdgeQuote) (kvstore.Item, error) {
	if err := q.Validate(); err != nil {
		return kvstore.Item{}, err
	}
	data, err := json.Marshal(q)
	if err != nil {
		return kvstore.Item{}, err
	}
	ttl := time.Duration(q.ExpiryTs-c.clk.NowMs()) * time.Millisecond
	if ttl < minQuoteTTL {
		ttl = minQuoteTTL
	}
	return kvstore.Item{Key: Key(q), Value: string(data), TTL: ttl}, nil
}
