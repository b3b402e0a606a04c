// Package prefetch drives the quote providers on their refresh cadences
// and writes returned snapshots into the edge cache.
package prefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumapay/routingd/internal/cache"
	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/metrics"
	"github.com/lumapay/routingd/internal/provider"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

const (
	// DefaultFastPeriod covers static and DEX providers.
	DefaultFastPeriod = 30 * time.Second
	// DefaultSlowPeriod covers rate-limited HTTP FX providers. The old
	// scheduler's "every 58 minutes" cron was ambiguous; a plain 60s
	// ticker with a 58s floor replaces it.
	DefaultSlowPeriod = 60 * time.Second
	// MinSlowPeriod is the floor enforced on configured slow periods.
	MinSlowPeriod = 58 * time.Second

	healthKeyPrefix = "venue:health"
	healthTTL       = 24 * time.Hour
)

// VenueHealth is the per-provider record written after every cycle.
type VenueHealth struct {
	VenueID       string `json:"venueId"`
	LastSuccessTs int64  `json:"lastSuccessTs,omitempty"`
	LastErrorTs   int64  `json:"lastErrorTs,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	QuoteCount    int    `json:"quoteCount"`
}

// Orchestrator invokes providers per tier and writes their snapshots
// through the edge cache. Provider failures are isolated: one venue
// going dark never cancels its siblings.
type Orchestrator struct {
	fast  []provider.QuoteProvider
	slow  []provider.QuoteProvider
	cache *cache.EdgeCache
	store kvstore.Store
	clk   clock.Clock
	log   *zap.Logger

	fastPeriod time.Duration
	slowPeriod time.Duration

	wg sync.WaitGroup
}

// Options tune the orchestrator periods. Zero values take defaults.
type Options struct {
	FastPeriod time.Duration
	SlowPeriod time.Duration
}

func NewOrchestrator(fast, slow []provider.QuoteProvider, edgeCache *cache.EdgeCache, store kvstore.Store, clk clock.Clock, log *zap.Logger, opts Options) *Orchestrator {
	fastPeriod := opts.FastPeriod
	if fastPeriod <= 0 {
		fastPeriod = DefaultFastPeriod
	}
	slowPeriod := opts.SlowPeriod
	if slowPeriod < MinSlowPeriod {
		slowPeriod = DefaultSlowPeriod
	}
	return &Orchestrator{
		fast:       fast,
		slow:       slow,
		cache:      edgeCache,
		store:      store,
		clk:        clk,
		log:        log.Named("prefetch"),
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

// Start warms the cache with one eager slow-tier fetch, then runs both
// tier loops until ctx is cancelled. A tier waits for its in-flight
// cycle before starting the next; period boundaries never cancel calls.
func (o *Orchestrator) Start(ctx context.Context) {
	// Warm the cache so the first router request sees FX edges.
	o.RunSlowCycle(ctx)
	o.RunFastCycle(ctx)

	o.wg.Add(2)
	go o.loop(ctx, o.fastPeriod, o.RunFastCycle)
	go o.loop(ctx, o.slowPeriod, o.RunSlowCycle)
}

// Wait blocks until both tier loops have stopped.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) loop(ctx context.Context, period time.Duration, cycle func(context.Context)) {
	defer o.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// RunFastCycle invokes every fast-tier provider once, concurrently.
func (o *Orchestrator) RunFastCycle(ctx context.Context) {
	o.runTier(ctx, "fast", o.fast)
}

// RunSlowCycle invokes every slow-tier provider once, concurrently.
// Each provider's internal pacing is respected.
func (o *Orchestrator) RunSlowCycle(ctx context.Context) {
	o.runTier(ctx, "slow", o.slow)
}

func (o *Orchestrator) runTier(ctx context.Context, tier string, providers []provider.QuoteProvider) {
	if len(providers) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		p := p
		g.Go(func() error {
			o.fetchOne(gctx, tier, p)
			// Sibling providers keep running whatever happens here.
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) fetchOne(ctx context.Context, tier string, p provider.QuoteProvider) {
	quotes, err := p.FetchQuotes(ctx)
	if err != nil {
		o.log.Warn("provider fetch failed",
			zap.String("tier", tier), zap.String("venue", p.VenueID()), zap.Error(err))
		metrics.ProviderFetches.WithLabelValues(p.VenueID(), "error").Inc()
		o.writeHealth(ctx, p.VenueID(), 0, err)
		return
	}
	if err := o.cache.PutQuoteBatch(ctx, quotes); err != nil {
		o.log.Warn("cache write failed",
			zap.String("venue", p.VenueID()), zap.Error(err))
		metrics.ProviderFetches.WithLabelValues(p.VenueID(), "cache_error").Inc()
		o.writeHealth(ctx, p.VenueID(), 0, err)
		return
	}
	metrics.ProviderFetches.WithLabelValues(p.VenueID(), "ok").Inc()
	o.writeHealth(ctx, p.VenueID(), len(quotes), nil)
}

func (o *Orchestrator) writeHealth(ctx context.Context, venueID string, count int, fetchErr error) {
	key := fmt.Sprintf("%s:%s", healthKeyPrefix, venueID)

	health := VenueHealth{VenueID: venueID, QuoteCount: count}
	if raw, err := o.store.Get(ctx, key); err == nil {
		_ = json.Unmarshal([]byte(raw), &health)
		health.QuoteCount = count
	}
	now := o.clk.NowMs()
	if fetchErr != nil {
		health.LastErrorTs = now
		health.LastError = fetchErr.Error()
	} else {
		health.LastSuccessTs = now
		health.LastError = ""
	}

	data, err := json.Marshal(health)
	if err != nil {
		return
	}
	if err := o.store.Set(ctx, key, string(data), healthTTL); err != nil {
		o.log.Debug("health write failed", zap.String("venue", venueID), zap.Error(err))
	}
}

// Healths returns every venue health record currently stored.
func (o *Orchestrator) Healths(ctx context.Context) ([]VenueHealth, error) {
	keys, err := o.store.Scan(ctx, healthKeyPrefix+":*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := o.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]VenueHealth, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		var h VenueHealth
		if err := json.Unmarshal([]byte(*v), &h); err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
