package provider

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
)

// lastGoodCapacity bounds the per-provider cache. Providers track a few
// dozen pairs; the bound only guards against a misconfigured pair list.
const lastGoodCapacity = 512

// staleQuoteValidity is how long a merged-in stale quote stays usable.
// LastUpdatedTs keeps the original fetch time so consumers can see the
// staleness.
const staleQuoteValidity = 60 * time.Second

// lastGood is a provider's process-local cache of the most recent
// successful quote per (from, to). After a fetch cycle the fresh pairs
// are merged over it, so a partial upstream outage degrades to the
// previous snapshot instead of dropping edges. Single writer: the
// provider's fetch path.
type lastGood struct {
	cache *lru.Cache[string, quote.EdgeQuote]
	clk   clock.Clock
}

func newLastGood(clk clock.Clock) *lastGood {
	cache, _ := lru.New[string, quote.EdgeQuote](lastGoodCapacity)
	return &lastGood{cache: cache, clk: clk}
}

// merge records the fresh quotes and returns them plus the cached quote
// for every pair the cycle failed to refresh. The second return is the
// number of stale pairs served from cache.
func (lg *lastGood) merge(fresh []quote.EdgeQuote) ([]quote.EdgeQuote, int) {
	seen := make(map[string]bool, len(fresh))
	for i := range fresh {
		key := fresh[i].PairKey()
		seen[key] = true
		lg.cache.Add(key, fresh[i])
	}

	out := append([]quote.EdgeQuote(nil), fresh...)
	stale := 0

	keys := lg.cache.Keys()
	sort.Strings(keys)
	nowMs := lg.clk.NowMs()
	for _, key := range keys {
		if seen[key] {
			continue
		}
		q, ok := lg.cache.Peek(key)
		if !ok {
			continue
		}
		q.ExpiryTs = nowMs + staleQuoteValidity.Milliseconds()
		out = append(out, q)
		stale++
	}
	return out, stale
}

// seed pre-populates the cache. Tests and warm restarts.
func (lg *lastGood) seed(quotes []quote.EdgeQuote) {
	for i := range quotes {
		lg.cache.Add(quotes[i].PairKey(), quotes[i])
	}
}

func (lg *lastGood) len() int { return lg.cache.Len() }
