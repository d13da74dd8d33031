package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trade-alert/internal/alerts"
	"trade-alert/internal/fetcher"
	"trade-alert/internal/metrics"
	"trade-alert/internal/notify"
	"trade-alert/internal/quote"
)

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the price watcher until interrupted",
		Long: `Polls prices for every symbol with an active alert, records them in the
price history and triggers alerts whose condition is met.

Stops cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app)
		},
	}
}

func runServe(parent context.Context, app *App) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.Config
	logger := app.Logger

	st, err := app.Store()
	if err != nil {
		return err
	}

	notifier := notify.New(cfg.Notifications, logger)
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close notifier")
		}
	}()
	logger.Info().Strs("channels", notifier.Channels()).Msg("Notifier ready")

	evaluator := alerts.NewEvaluator(st, notifier, logger)
	service := fetcher.NewService(cfg.PriceFetcher, st, quote.NewSources(cfg), evaluator, logger)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Str("version", Version).Str("database", cfg.Database.Path).Msg("Trade Alert starting")
	err = service.Start(ctx)
	logger.Info().Msg("Trade Alert stopped")
	return err
}
