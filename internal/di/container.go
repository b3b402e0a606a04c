// Package di wires the routing engine together: it owns construction
// order and the connect-on-start / close-on-shutdown lifecycle of the
// shared key-value store.
package di

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/cache"
	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/config"
	"github.com/lumapay/routingd/internal/pipeline"
	"github.com/lumapay/routingd/internal/prefetch"
	"github.com/lumapay/routingd/internal/provider"
	"github.com/lumapay/routingd/internal/router"
	"github.com/lumapay/routingd/internal/scoring"
	"github.com/lumapay/routingd/internal/server"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

// Container holds every constructed component of the engine.
type Container struct {
	Config       *config.Config
	Clock        clock.Clock
	Store        kvstore.Store
	EdgeCache    *cache.EdgeCache
	Orchestrator *prefetch.Orchestrator
	Router       *router.Router
	Scorer       *scoring.Scorer
	Service      *pipeline.Service
	Hub          *server.Hub
	Server       *server.Server

	log *zap.Logger
}

// Build constructs the full component graph from configuration.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Container, error) {
	clk := clock.NewSystem()

	store, err := buildStore(ctx, cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("building store: %w", err)
	}

	edgeCache := cache.NewEdgeCache(store, clk, log)

	fast, slow, err := buildProviders(cfg, clk, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	orchestrator := prefetch.NewOrchestrator(fast, slow, edgeCache, store, clk, log, prefetch.Options{
		FastPeriod: cfg.Prefetch.FastPeriod,
		SlowPeriod: cfg.Prefetch.SlowPeriod,
	})

	rt := router.New(edgeCache, clk, log)
	scorer := scoring.NewScorer(scoringParams(cfg))

	hub := server.NewHub(log)
	quotes := pipeline.NewQuotes(store, clk, log, nil)
	deposits := pipeline.NewDeposits(store, clk, log, depositConfig(cfg))
	executions := pipeline.NewExecutions(store, clk, log, hub)
	driver := pipeline.NewDriver(executions, &pipeline.MockStepExecutor{}, log)
	service := pipeline.NewService(rt, scorer, quotes, deposits, executions, driver, clk, log)

	srv := server.New(cfg.Server.Listen, service, edgeCache, orchestrator, store, hub, log)

	return &Container{
		Config:       cfg,
		Clock:        clk,
		Store:        store,
		EdgeCache:    edgeCache,
		Orchestrator: orchestrator,
		Router:       rt,
		Scorer:       scorer,
		Service:      service,
		Hub:          hub,
		Server:       srv,
		log:          log.Named("di"),
	}, nil
}

// Close releases everything the container owns.
func (c *Container) Close() error {
	return c.Store.Close()
}

func buildStore(ctx context.Context, cfg *config.Config, clk clock.Clock) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return kvstore.NewRedisStore(ctx, kvstore.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
	case "pebble":
		return kvstore.NewPebbleStore(cfg.Store.Pebble.Path, clk)
	case "memory":
		return kvstore.NewMemoryStore(clk), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildProviders(cfg *config.Config, clk clock.Clock, log *zap.Logger) (fast, slow []provider.QuoteProvider, err error) {
	if cfg.Provider.StaticMock {
		fast = append(fast, provider.NewStaticProvider("otc:mock", mockEntries(), clk))
	}
	for _, dc := range cfg.Provider.DEX {
		pairs, err := parsePairs(dc.Pairs)
		if err != nil {
			return nil, nil, fmt.Errorf("dex provider %s: %w", dc.VenueID, err)
		}
		fast = append(fast, provider.NewDEXProvider(dc.VenueID, dc.BaseURL, pairs, clk, log))
	}
	for _, fc := range cfg.Provider.FX {
		pairs, err := parsePairs(fc.Pairs)
		if err != nil {
			return nil, nil, fmt.Errorf("fx provider %s: %w", fc.VenueID, err)
		}
		switch fc.Mode {
		case "single":
			slow = append(slow, provider.NewSinglePairFXProvider(fc.VenueID, fc.BaseURL, fc.APIKey, pairs, clk, log))
		case "batch":
			slow = append(slow, provider.NewBatchFXProvider(fc.VenueID, fc.BaseURL, fc.APIKey, pairs, clk, log))
		default:
			return nil, nil, fmt.Errorf("fx provider %s: unknown mode %q", fc.VenueID, fc.Mode)
		}
	}
	return fast, slow, nil
}

func parsePairs(raw []string) ([]provider.Pair, error) {
	pairs := make([]provider.Pair, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid pair %q, want FROM/TO", r)
		}
		pairs = append(pairs, provider.Pair{From: parts[0], To: parts[1]})
	}
	return pairs, nil
}

func scoringParams(cfg *config.Config) scoring.Params {
	params := scoring.DefaultParams()
	if len(cfg.Scoring.DailyVolatility) > 0 {
		params.DailyVolatility = cfg.Scoring.DailyVolatility
	}
	if len(cfg.Scoring.VenueCounterpartyRisk) > 0 {
		params.VenueCounterpartyRisk = cfg.Scoring.VenueCounterpartyRisk
	}
	if cfg.Scoring.DefaultDailyVolatility > 0 {
		params.DefaultDailyVolatility = cfg.Scoring.DefaultDailyVolatility
	}
	if cfg.Scoring.DefaultCounterpartyRisk > 0 {
		params.DefaultCounterpartyRisk = cfg.Scoring.DefaultCounterpartyRisk
	}
	if cfg.Scoring.RiskFactor > 0 {
		params.RiskFactor = cfg.Scoring.RiskFactor
	}
	return params
}

func depositConfig(cfg *config.Config) pipeline.DepositConfig {
	accounts := make(map[string]pipeline.AccountDetails, len(cfg.Deposit.Accounts))
	for method, details := range cfg.Deposit.Accounts {
		accounts[method] = pipeline.AccountDetails(details)
	}
	return pipeline.DepositConfig{
		Accounts: accounts,
		PIX: pipeline.PIXConfig{
			Key:          cfg.Deposit.PIX.Key,
			MerchantName: cfg.Deposit.PIX.MerchantName,
			MerchantCity: cfg.Deposit.PIX.MerchantCity,
		},
	}
}

// mockEntries is the development quote set served by the static
// provider: one OTC corridor per supported fiat plus a DEX stablecoin
// pool.
func mockEntries() []provider.StaticEntry {
	return []provider.StaticEntry{
		{VenueID: "otc:mock", VenueKind: "OTC", FromToken: "BRL", ToToken: "USDC", AmountIn: 10000, AmountOut: 2000, FeeBps: 40, MaxAmountIn: 500000},
		{VenueID: "otc:mock", VenueKind: "OTC", FromToken: "USDC", ToToken: "BRL", AmountIn: 2000, AmountOut: 9900, FeeBps: 40, MaxAmountIn: 100000},
		{VenueID: "otc:mock", VenueKind: "OTC", FromToken: "MXN", ToToken: "USDC", AmountIn: 17000, AmountOut: 1000, FeeBps: 45, MaxAmountIn: 800000},
		{VenueID: "otc:mock", VenueKind: "OTC", FromToken: "USDC", ToToken: "EUR", AmountIn: 1000, AmountOut: 920, FeeBps: 30, MaxAmountIn: 250000},
		{VenueID: "dex:orca:mock", VenueKind: "DEX", FromToken: "USDC", ToToken: "EURC", AmountIn: 1000, AmountOut: 918, FeeBps: 20},
		{VenueID: "dex:orca:mock", VenueKind: "DEX", FromToken: "EURC", ToToken: "USDC", AmountIn: 918, AmountOut: 996, FeeBps: 20},
	}
}
