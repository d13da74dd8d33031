// Package cli provides the command-line interface for the price alert service.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trade-alert/internal/config"
	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/logging"
	"trade-alert/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// skipSetup marks commands that run without loading configuration.
const skipSetup = "skip_setup"

// App holds the application dependencies. The store is opened on first use.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger

	store store.Store
}

// Store returns the SQLite store, opening it on first call.
func (a *App) Store() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := store.NewSQLiteStore(a.Config.Database.Path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "opening database %s", a.Config.Database.Path)
	}
	a.Logger.Debug().Str("path", a.Config.Database.Path).Msg("SQLite store initialized")
	a.store = st
	return st, nil
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "trade-alert",
		Short: "Trade Alert - stock and crypto price alerts",
		Long: `Trade Alert watches prices for symbols with active alerts and notifies
you when a price crosses your threshold.

US stocks and crypto are quoted from Yahoo Finance; Shenzhen (.SZ) and
Shanghai (.SS) A-shares from Sina with Tencent as backup.

Run 'trade-alert serve' to start the watcher and 'trade-alert alert create'
to add alerts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trade-alert)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newAlertCmd(app))
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newTestEmailCmd(app))

	return rootCmd
}

func (a *App) setup(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.ConfigDir = dir
	a.Config = cfg

	logger := logging.NewLoggerWithConfig(logging.FromConfig(cfg.Logging))
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logger = logger.Level(zerolog.DebugLevel)
	}
	a.Logger = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Trade Alert v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.ConfigDir, app.Config)
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg without secrets.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.Notifications.Email.Password != "" {
		c.Notifications.Email.Password = "********"
	}
	if c.Notifications.Telegram.BotToken != "" {
		c.Notifications.Telegram.BotToken = "********"
	}
	return c
}

func showConfig(output *Output, dir string, cfg *config.Config) {
	pf := cfg.PriceFetcher

	output.Bold("General")
	output.Printf("  Config dir:       %s\n", dir)
	output.Printf("  Database:         %s\n", cfg.Database.Path)
	output.Printf("  Log level:        %s\n", cfg.Logging.Level)
	output.Println()

	output.Bold("Price Fetcher")
	output.Printf("  Update interval:  %s\n", pf.UpdateInterval())
	output.Printf("  Cache TTL:        %s\n", pf.CacheTTL())
	output.Printf("  Max retries:      %d\n", pf.MaxRetries)
	output.Printf("  Max concurrent:   %d\n", pf.MaxConcurrentRequests)
	output.Printf("  Max per hour:     %d\n", pf.MaxRequestsPerHour)
	output.Printf("  Request timeout:  %s\n", pf.RequestTimeout())
	output.Printf("  Budget backoff:   %s\n", pf.RateLimitBackoff())
	output.Println()

	output.Bold("Alerts")
	if cfg.Alerts.MaxPerUser > 0 {
		output.Printf("  Max per user:     %d\n", cfg.Alerts.MaxPerUser)
	} else {
		output.Printf("  Max per user:     unlimited\n")
	}
	output.Printf("  Default user:     %s\n", cfg.Alerts.DefaultUser)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Email:            %v\n", cfg.Notifications.Email.Enabled)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:         %v\n", cfg.Notifications.Telegram.Enabled)
	output.Printf("  Kafka:            %v\n", cfg.Notifications.Kafka.Enabled)
	output.Println()

	output.Bold("Metrics")
	output.Printf("  Enabled:          %v\n", cfg.Metrics.Enabled)
	output.Printf("  Address:          %s\n", cfg.Metrics.Addr)
}
