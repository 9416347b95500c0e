package cli

import (
	"github.com/spf13/cobra"

	"auction-tracker/internal/logging"
)

func newUserCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Register users and show everything they track.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <user-id> <email>",
		Short: "Register a user or change their email",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			user, err := app.Tracker.RegisterUser(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(user)
			}
			output.Success("✓ User %s registered (%s)", user.ID, logging.MaskEmail(user.Email))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's bids, watchlist and future cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			data, err := app.Tracker.UserData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(data)
			}

			output.Bold("User %s", data.User.ID)
			if data.User.Email != "" {
				output.Printf("  Email:        %s\n", data.User.Email)
			} else {
				output.Warning("  No email address, notifications will fail")
			}
			output.Printf("  Current bids: %d\n", len(data.CurrentBids))
			output.Printf("  Watchlist:    %d\n", len(data.Watchlist))
			output.Printf("  Future cards: %d\n", len(data.FutureCards))
			return nil
		},
	})

	return cmd
}
