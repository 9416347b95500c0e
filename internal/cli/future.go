package cli

import (
	"github.com/spf13/cobra"
)

func newFutureCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "future",
		Aliases: []string{"f"},
		Short:   "Manage cards to watch for in future auctions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <user-id> <card-name>",
		Short: "Remember a card for later",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			card, err := app.Tracker.AddFutureCard(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(card)
			}
			output.Success("✓ Added %s to future cards (id %s)", card.Name, card.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list <user-id>",
		Aliases: []string{"ls"},
		Short:   "List future cards",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			data, err := app.Tracker.UserData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(data.FutureCards)
			}
			if len(data.FutureCards) == 0 {
				output.Info("No future cards")
				return nil
			}

			output.Bold("🔮 Future cards (%d)", len(data.FutureCards))
			table := NewTable(output, "ID", "NAME", "ADDED")
			for _, c := range data.FutureCards {
				table.AddRow(c.ID, c.Name, FormatDateTime(c.DateAdded))
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <user-id> <card-id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Forget a future card",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Tracker.DeleteFutureCard(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[1]})
			}
			output.Success("✓ Removed future card %s", args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move <user-id> <card-id>",
		Short: "Move a future card to the watchlist",
		Long: `Move a future card to the watchlist once its auction is listed.
Set the end time afterwards with 'watch update --hours'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			item, err := app.Tracker.MoveFutureToWatchlist(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(item)
			}
			output.Success("✓ Now watching %s (id %s)", item.CardName, item.ID)
			return nil
		},
	})

	return cmd
}
