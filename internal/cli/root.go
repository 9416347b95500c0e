// Package cli provides the command-line interface for the auction tracker.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"auction-tracker/internal/config"
	"auction-tracker/internal/logging"
	"auction-tracker/internal/notify"
	"auction-tracker/internal/schedule"
	"auction-tracker/internal/store"
	"auction-tracker/internal/tracker"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-05-01"
)

// App holds the application dependencies.
type App struct {
	ConfigDir  string
	Config     *config.Config
	Logger     zerolog.Logger
	Store      store.DataStore
	Scheduler  *schedule.Scheduler
	Tracker    *tracker.Service
	Dispatcher *notify.MultiDispatcher
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "auction-tracker",
		Short: "Track card auctions and get notified when they end",
		Long: `Auction Tracker keeps your current bids, watchlist and future cards,
and emails you when a watched auction ends.

Run 'auction-tracker serve' to keep the notification sweep running.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}
	cobra.OnFinalize(func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("Closing store failed")
		}
	})

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/auction-tracker)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newUserCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newBidsCmd(app))
	rootCmd.AddCommand(newFutureCmd(app))
	rootCmd.AddCommand(newNotificationsCmd(app))
	rootCmd.AddCommand(newSweepCmd(app))
	rootCmd.AddCommand(newPollCmd(app))
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

// init loads configuration and opens the store. Commands annotated with
// skipStore only get configuration.
func (a *App) init(cmd *cobra.Command) error {
	a.ConfigDir, _ = cmd.Flags().GetString("config")
	if a.ConfigDir == "" {
		a.ConfigDir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(a.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.Config = cfg

	a.Logger = logging.NewLoggerWithConfig(logging.FromConfig(cfg.Logging))
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}

	if cmd.Annotations[skipStore] == "true" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	ds, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	a.Store = ds
	a.Logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")

	a.Scheduler = schedule.New(ds, a.Logger)
	a.Tracker = tracker.New(ds, a.Scheduler, a.Logger)
	a.Dispatcher = notify.NewMultiDispatcher(&cfg.Notifications, ds, a.Logger)

	return nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

const skipStore = "skip-store"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Auction Tracker v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "show",
		Short:       "Show current configuration",
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.ConfigDir})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration",
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.Notifications.Email.Password != "" {
		c.Notifications.Email.Password = "********"
	}
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Store")
	output.Printf("  Path:              %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Sweep")
	output.Printf("  Interval:          %s\n", cfg.Sweep.Interval)
	output.Printf("  Batch size:        %d\n", cfg.Sweep.BatchSize)
	output.Printf("  Concurrency:       %d\n", cfg.Sweep.Concurrency)
	output.Printf("  Dispatch attempts: %d\n", cfg.Sweep.DispatchAttempts)
	output.Println()

	output.Bold("Countdown poller")
	output.Printf("  Enabled:           %v\n", cfg.Poller.Enabled)
	output.Printf("  Interval:          %s\n", cfg.Poller.Interval)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Results URL:       %s\n", cfg.Notifications.ResultsBaseURL)
	output.Printf("  Outbox:            %v\n", cfg.Notifications.Outbox.Enabled)
	output.Printf("  Webhook:           %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Email:             %v\n", cfg.Notifications.Email.Enabled)
	if cfg.Notifications.Email.Enabled {
		output.Printf("  SMTP:              %s:%d\n", cfg.Notifications.Email.SMTPHost, cfg.Notifications.Email.SMTPPort)
	}
	output.Printf("  Terminal:          %v\n", cfg.Notifications.Terminal.Enabled)
}
