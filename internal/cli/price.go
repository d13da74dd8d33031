package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"trade-alert/internal/alerts"
	"trade-alert/internal/fetcher"
	"trade-alert/internal/models"
	"trade-alert/internal/notify"
	"trade-alert/internal/quote"
	"trade-alert/internal/store"
	"trade-alert/pkg/utils"
)

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price history and one-off fetches",
	}

	cmd.AddCommand(newPriceHistoryCmd(app))
	cmd.AddCommand(newPriceLatestCmd(app))
	cmd.AddCommand(newPriceFetchCmd(app))

	return cmd
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func newPriceHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <symbol>",
		Short: "Show recorded daily prices, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := normalizeSymbol(args[0])
			limit, _ := cmd.Flags().GetInt("limit")

			st, err := app.Store()
			if err != nil {
				return err
			}
			bars, err := st.PriceHistory(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(bars)
			}
			output.renderBars(symbol, bars)
			return nil
		},
	}
	cmd.Flags().Int("limit", store.DefaultHistoryLimit, "maximum rows")
	return cmd
}

func newPriceLatestCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <symbol>",
		Short: "Show the most recent recorded price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := normalizeSymbol(args[0])

			st, err := app.Store()
			if err != nil {
				return err
			}
			bar, err := st.LatestPrice(cmd.Context(), symbol)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(bar)
			}
			output.Printf("%s  %s  %s  volume %s\n",
				bar.Symbol, bar.Date, utils.FormatPrice(bar.Symbol, bar.Close), utils.FormatVolume(bar.Volume))
			return nil
		},
	}
}

func newPriceFetchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <symbol>",
		Short: "Run the fetch pipeline once for a symbol",
		Long: `Fetches a price through the same source chain, retries and fallback the
watcher uses, and records it in the price history.

With --evaluate, active alerts on the symbol are checked and may trigger.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := normalizeSymbol(args[0])
			evaluate, _ := cmd.Flags().GetBool("evaluate")
			cfg := app.Config

			st, err := app.Store()
			if err != nil {
				return err
			}

			var evaluator fetcher.Evaluator
			var fired []models.Alert
			if evaluate {
				notifier := notify.New(cfg.Notifications, app.Logger)
				defer notifier.Close()
				ev := alerts.NewEvaluator(st, notifier, app.Logger)
				ev.SetOnTrigger(func(a models.Alert, _ models.PriceSample) {
					fired = append(fired, a)
				})
				evaluator = ev
			}

			service := fetcher.NewService(cfg.PriceFetcher, st, quote.NewSources(cfg), evaluator, app.Logger)
			res, err := service.ProcessSymbol(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			sample := res.Sample

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    sample.Symbol,
					"name":      sample.Name,
					"price":     sample.Price.String(),
					"volume":    sample.Volume,
					"source":    sample.Source,
					"timestamp": sample.Timestamp,
					"triggered": res.Triggered,
					"alerts":    fired,
				})
			}

			market := utils.DetectMarket(symbol)
			output.Bold("%s  %s", sample.Symbol, sample.Name)
			output.Printf("  Price:   %s\n", utils.FormatPrice(sample.Symbol, sample.Price))
			output.Printf("  Volume:  %s\n", utils.FormatVolume(sample.Volume))
			output.Printf("  Market:  %s\n", market.DisplayName())
			output.Printf("  Source:  %s\n", sample.Source)
			if sample.Source.IsSynthetic() {
				output.Warning("All sources failed; this price is synthetic")
			}
			if evaluate {
				output.Printf("  Alerts triggered: %d\n", res.Triggered)
				for _, a := range fired {
					output.Printf("    %s  %s %s\n", ShortID(a.ID), a.Condition, utils.FormatPrice(a.Symbol, a.Price))
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("evaluate", false, "check active alerts against the fetched price")
	return cmd
}

func newTestEmailCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test-email",
		Short: "Send a test message through the email channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			notifier := notify.New(app.Config.Notifications, app.Logger)
			defer notifier.Close()

			if err := notifier.SendTestEmail(cmd.Context()); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]bool{"sent": true})
			}
			output.Success("✓ Test email sent")
			return nil
		},
	}
}
