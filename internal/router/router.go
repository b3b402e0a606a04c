// Package router resolves (amount, fromToken, toToken) requests into the
// best reachable route of 1-3 hops over the live edge cache.
package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumapay/routingd/internal/cache"
	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/metrics"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/token"
)

// Result is the outcome of one route search. A nil Route means no
// viable path; that is not an error.
type Result struct {
	Route            *quote.Route `json:"route"`
	ConsideredQuotes int          `json:"consideredQuotes"`

	// Fallback is the best candidate over a different venue path,
	// carried into execution records for one-shot retry.
	Fallback *quote.Route `json:"-"`
	// RouteQuotes are the edge quotes behind Route's steps, in step
	// order. The settlement scorer consumes them.
	RouteQuotes []quote.EdgeQuote `json:"-"`
}

// Router performs stateless best-route searches. Each call tracks its
// own best candidate; nothing is shared between requests.
type Router struct {
	cache *cache.EdgeCache
	clk   clock.Clock
	log   *zap.Logger
}

func New(edgeCache *cache.EdgeCache, clk clock.Clock, log *zap.Logger) *Router {
	return &Router{cache: edgeCache, clk: clk, log: log.Named("router")}
}

// BestRoute finds the route with the maximum total output for amountIn
// of fromToken into toToken. When intermediates is empty the stablecoin
// set is used. minExpiry requires each quote to stay valid at least
// that much longer.
//
// Internal failures are contained: the search logs and reports no
// route rather than surfacing an error to the read path.
func (r *Router) BestRoute(ctx context.Context, amountIn float64, fromToken, toToken string, intermediates []string, minExpiry time.Duration) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("route search panicked", zap.Any("panic", rec),
				zap.String("from", fromToken), zap.String("to", toToken))
			res = Result{}
		}
	}()

	if amountIn <= 0 || fromToken == "" || toToken == "" || fromToken == toToken {
		return Result{}
	}

	mids := candidateIntermediates(fromToken, toToken, intermediates)
	s := &search{
		nowMs:       r.clk.NowMs(),
		minExpiryMs: minExpiry.Milliseconds(),
		edges:       make(map[pair][]quote.EdgeQuote),
	}

	if err := r.loadEdges(ctx, s, fromToken, toToken, mids); err != nil {
		r.log.Warn("edge load failed", zap.String("from", fromToken),
			zap.String("to", toToken), zap.Error(err))
		return Result{}
	}

	var best, runnerUp candidate
	consider := func(c candidate) {
		if c.route == nil {
			return
		}
		switch {
		case best.route == nil || c.route.TotalOut > best.route.TotalOut:
			if best.route != nil && venuePath(best.route) != venuePath(c.route) {
				runnerUp = best
			}
			best = c
		case venuePath(c.route) != venuePath(best.route) &&
			(runnerUp.route == nil || c.route.TotalOut > runnerUp.route.TotalOut):
			runnerUp = c
		}
	}

	// 1-hop.
	for _, q := range s.get(fromToken, toToken) {
		consider(s.buildRoute(amountIn, q))
	}

	// 2-hop through each intermediate.
	for _, mid := range mids {
		for _, q1 := range s.get(fromToken, mid) {
			for _, q2 := range s.get(mid, toToken) {
				consider(s.buildRoute(amountIn, q1, q2))
			}
		}
	}

	// 3-hop through ordered pairs of the first two intermediates. The
	// two-intermediary cap bounds the search.
	for _, m := range orderedMidPairs(mids) {
		for _, q1 := range s.get(fromToken, m[0]) {
			for _, q2 := range s.get(m[0], m[1]) {
				for _, q3 := range s.get(m[1], toToken) {
					consider(s.buildRoute(amountIn, q1, q2, q3))
				}
			}
		}
	}

	metrics.RoutesConsidered.Observe(float64(s.considered))
	return Result{
		Route:            best.route,
		ConsideredQuotes: s.considered,
		Fallback:         runnerUp.route,
		RouteQuotes:      best.quotes,
	}
}

// venuePath fingerprints the venues a route crosses; the fallback must
// take a genuinely different path.
func venuePath(r *quote.Route) string {
	path := ""
	for _, s := range r.Steps {
		path += s.VenueID + "|"
	}
	return path
}

// loadEdges loads every pair any enumeration phase can touch, each pair
// once, all concurrently.
func (r *Router) loadEdges(ctx context.Context, s *search, fromToken, toToken string, mids []string) error {
	need := map[pair]bool{{fromToken, toToken}: true}
	for _, mid := range mids {
		need[pair{fromToken, mid}] = true
		need[pair{mid, toToken}] = true
	}
	for _, m := range orderedMidPairs(mids) {
		need[pair{m[0], m[1]}] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	for p := range need {
		p := p
		g.Go(func() error {
			quotes, err := r.cache.GetCachedByPair(gctx, p.from, p.to)
			if err != nil {
				return err
			}
			s.put(p, quotes)
			return nil
		})
	}
	return g.Wait()
}

// candidateIntermediates returns the caller's intermediates, or the
// stablecoin set when none are given, minus the endpoints.
func candidateIntermediates(fromToken, toToken string, intermediates []string) []string {
	src := intermediates
	if len(src) == 0 {
		src = token.Stablecoins
	}
	out := make([]string, 0, len(src))
	for _, m := range src {
		if m == fromToken || m == toToken {
			continue
		}
		out = append(out, m)
	}
	return out
}

// orderedMidPairs yields both orderings of the first two intermediates.
func orderedMidPairs(mids []string) [][2]string {
	if len(mids) < 2 {
		return nil
	}
	a, b := mids[0], mids[1]
	return [][2]string{{a, b}, {b, a}}
}

type pair struct{ from, to string }

// search is the request-local state of one route enumeration.
type search struct {
	mu          sync.Mutex
	edges       map[pair][]quote.EdgeQuote
	considered  int
	nowMs       int64
	minExpiryMs int64
}

func (s *search) put(p pair, quotes []quote.EdgeQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[p] = quotes
	s.considered += len(quotes)
}

func (s *search) get(from, to string) []quote.EdgeQuote {
	return s.edges[pair{from, to}]
}

// candidate pairs a constructed route with the edge quotes behind it.
type candidate struct {
	route  *quote.Route
	quotes []quote.EdgeQuote
}

// buildRoute chains an amount through the given quotes, applying the
// per-leg filter: enough remaining validity, within the venue's size
// cap, strictly positive output. Returns a nil-route candidate when any
// leg fails.
func (s *search) buildRoute(amountIn float64, quotes ...quote.EdgeQuote) candidate {
	steps := make([]quote.RouteStep, 0, len(quotes))
	x := amountIn
	for i := range quotes {
		q := &quotes[i]
		if !q.Live(s.nowMs, s.minExpiryMs) {
			return candidate{}
		}
		if q.MaxAmountIn > 0 && x > q.MaxAmountIn {
			return candidate{}
		}
		out := q.Output(x)
		if out <= 0 {
			return candidate{}
		}
		steps = append(steps, quote.NewRouteStep(q, x))
		x = out
	}
	return candidate{route: quote.NewRoute(steps, s.nowMs), quotes: quotes}
}
