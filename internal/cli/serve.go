package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"auction-tracker/internal/notify"
	"auction-tracker/internal/poller"
	"auction-tracker/internal/sweep"
)

func newSweepCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send every notification that is due, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sweeper := sweep.New(sweep.ConfigFrom(app.Config), app.Store, app.Store, app.Dispatcher, app.Logger)
			res, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			if res.Due == 0 {
				output.Info("Nothing due")
				return nil
			}
			output.Bold("Sweep finished")
			output.Printf("  Due:       %d\n", res.Due)
			output.Printf("  Sent:      %s\n", output.Green(strconv.Itoa(res.Completed)))
			if res.Failed > 0 {
				output.Printf("  Failed:    %s\n", output.Red(strconv.Itoa(res.Failed)))
			}
			if res.Skipped > 0 {
				output.Printf("  Skipped:   %d\n", res.Skipped)
			}
			return nil
		},
	}
}

func newPollCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Decrement every legacy countdown by one step, once",
		Long: `Decrement every legacy "hours left" countdown by one minute, once.

serve does this on every poller interval when the poller is enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			p := poller.New(app.Store, app.Store, app.Config.Poller.Interval, app.Logger)
			res, err := p.TickAll(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			if res.WatchItems == 0 && res.Bids == 0 {
				output.Info("No countdowns running")
				return nil
			}
			output.Success("✓ Countdowns decremented: %d watched, %d bids", res.WatchItems, res.Bids)
			return nil
		},
	}
}

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification sweep and countdown poller until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if app.Config.Notifications.Terminal.Enabled {
				app.Dispatcher.AddChannel(notify.NewTerminalDispatcher(app.Config.Notifications.Terminal, os.Stdout))
			}
			channels := app.Dispatcher.Channels()
			if len(channels) == 0 {
				output.Warning("⚠ No notification channels enabled, every due notification will fail")
			}

			sweeper := sweep.New(sweep.ConfigFrom(app.Config), app.Store, app.Store, app.Dispatcher, app.Logger)
			runner := sweep.NewRunner(sweeper, app.Config.Sweep.Interval, app.Logger)
			runner.Start(ctx)
			defer runner.Stop()

			if app.Config.Poller.Enabled {
				p := poller.New(app.Store, app.Store, app.Config.Poller.Interval, app.Logger)
				p.Start(ctx)
				defer p.Stop()
			}

			if !output.IsJSON() {
				output.Success("✓ Serving (sweep every %s, channels: %v)", app.Config.Sweep.Interval, channels)
				output.Dim("Press Ctrl+C to stop")
			}

			<-ctx.Done()
			app.Logger.Info().Msg("Shutting down")
			return nil
		},
	}
}
