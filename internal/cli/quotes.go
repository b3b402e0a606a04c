package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/cache"
	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/config"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

var (
	quotesFrom string
	quotesTo   string
)

// quotesCmd inspects the cached edge quotes for one pair. Only useful
// against a shared backend (redis or pebble); the memory backend is
// process-local.
var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "List cached quotes for a token pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clk := clock.NewSystem()
		var store kvstore.Store
		switch cfg.Store.Backend {
		case "redis":
			store, err = kvstore.NewRedisStore(ctx, kvstore.RedisOptions{
				Addr:     cfg.Store.Redis.Addr,
				Password: cfg.Store.Redis.Password,
				DB:       cfg.Store.Redis.DB,
			})
		case "pebble":
			store, err = kvstore.NewPebbleStore(cfg.Store.Pebble.Path, clk)
		default:
			return fmt.Errorf("quotes inspection needs a redis or pebble backend, store.backend is %q", cfg.Store.Backend)
		}
		if err != nil {
			return err
		}
		defer store.Close()

		edgeCache := cache.NewEdgeCache(store, clk, zap.NewNop())
		quotes, err := edgeCache.GetCachedByPair(ctx, quotesFrom, quotesTo)
		if err != nil {
			return err
		}
		if len(quotes) == 0 {
			fmt.Printf("no cached quotes for %s/%s\n", quotesFrom, quotesTo)
			return nil
		}

		now := clk.NowMs()
		for _, q := range quotes {
			state := "live"
			if q.ExpiryTs <= now {
				state = "expired"
			}
			fmt.Printf("%-24s %s  rate=%.6f fee=%dbps expires=%s (%s)\n",
				q.VenueID, q.VenueKind, q.Rate(), q.FeeBps,
				time.UnixMilli(q.ExpiryTs).UTC().Format(time.RFC3339), state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quotesCmd)
	quotesCmd.Flags().StringVar(&quotesFrom, "from", "", "source token or currency")
	quotesCmd.Flags().StringVar(&quotesTo, "to", "", "destination token or currency")
	quotesCmd.MarkFlagRequired("from") //nolint:errcheck
	quotesCmd.MarkFlagRequired("to")   //nolint:errcheck
}
