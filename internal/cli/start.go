package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/config"
	"github.com/lumapay/routingd/internal/di"
	"github.com/lumapay/routingd/internal/logging"
)

const shutdownGrace = 10 * time.Second

// startCmd boots the full engine: store, prefetch loops, HTTP API.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the routing engine",
	Long: `Start the routingd server which provides:
- Route quoting and execution HTTP API under /routing
- Deposit webhook ingestion
- WebSocket execution event stream
- Background quote prefetch against configured venues`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	// Start is the default action.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runStart(cmd, args)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	container.Orchestrator.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- container.Server.Start()
	}()

	log.Info("routingd started",
		zap.String("listen", cfg.Server.Listen),
		zap.String("store", cfg.Store.Backend))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := container.Server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	container.Orchestrator.Wait()
	return nil
}
