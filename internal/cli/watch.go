package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"auction-tracker/internal/models"
	"auction-tracker/internal/tracker"
)

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"watchlist", "w"},
		Short:   "Manage the watchlist",
		Long: `Manage auctions you are watching.

Adding an item with --hours or --ends schedules an email for when the
auction ends. Items added with --legacy-hours only carry a countdown that
the poller decrements; no email is sent for them.`,
	}

	cmd.AddCommand(newWatchAddCmd(app))
	cmd.AddCommand(newWatchListCmd(app))
	cmd.AddCommand(newWatchUpdateCmd(app))
	cmd.AddCommand(newWatchRemoveCmd(app))
	cmd.AddCommand(newWatchMoveCmd(app))
	cmd.AddCommand(newWatchImportCmd(app))

	return cmd
}

func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("seller", "", "seller name")
	cmd.Flags().String("price", "", "listed price in gold")
	cmd.Flags().String("desc", "", "description")
	cmd.Flags().String("race", "", "race: Human, Elf, Orc or Undead")
	cmd.Flags().Int("rarity", 0, "rarity from 1 to 7")
	cmd.Flags().Float64("hours", 0, "hours until the auction ends")
	cmd.Flags().Bool("has-bids", false, "the auction already has bids")
	cmd.Flags().Bool("bidding", false, "you are actively bidding")
}

func newWatchAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <user-id> <card-name>",
		Short: "Add an auction to the watchlist",
		Example: `  auction-tracker watch add alice "Ancient Dragon" --hours 24 --price 1500 --race Elf --rarity 6
  auction-tracker watch add alice "Lich King" --ends 2025-05-01T18:30:00Z`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			in := tracker.WatchInput{CardName: args[1]}
			in.Seller, _ = cmd.Flags().GetString("seller")
			in.Description, _ = cmd.Flags().GetString("desc")
			in.Race, _ = cmd.Flags().GetString("race")
			in.Rarity, _ = cmd.Flags().GetInt("rarity")
			in.HoursLeft, _ = cmd.Flags().GetFloat64("hours")
			in.LegacyHours, _ = cmd.Flags().GetFloat64("legacy-hours")
			in.HasBids, _ = cmd.Flags().GetBool("has-bids")
			in.ActivelyBidding, _ = cmd.Flags().GetBool("bidding")

			price, _ := cmd.Flags().GetString("price")
			var err error
			if in.Price, err = ParseGold(price); err != nil {
				return err
			}
			ends, _ := cmd.Flags().GetString("ends")
			if in.EndTime, err = ParseEndTime(ends); err != nil {
				return err
			}

			item, err := app.Tracker.AddWatchItem(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(item)
			}
			output.Success("✓ Watching %s (id %s)", item.CardName, item.ID)
			if item.HasEndTime() {
				output.Dim("  Ends %s, you will be emailed then", FormatDateTime(item.Timing.EndTime))
			} else {
				output.Dim("  No end time set, no email will be sent")
			}
			return nil
		},
	}

	addWatchFlags(cmd)
	cmd.Flags().String("ends", "", "auction end time (RFC 3339 or \"YYYY-MM-DD HH:MM\")")
	cmd.Flags().Float64("legacy-hours", 0, "store a bare hours-left countdown instead of an end time")
	return cmd
}

func newWatchListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list <user-id>",
		Aliases: []string{"ls"},
		Short:   "List watched auctions with time remaining",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			statuses, err := app.Tracker.WatchStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(statuses)
			}
			if len(statuses) == 0 {
				output.Info("Watchlist is empty")
				return nil
			}

			output.Bold("👀 Watchlist (%d)", len(statuses))
			table := NewTable(output, "ID", "CARD", "SELLER", "PRICE", "RACE", "RARITY", "TIME LEFT", "PROGRESS")
			for _, s := range statuses {
				table.AddRow(
					s.Item.ID,
					TruncateString(s.Item.CardName, 28),
					s.Item.Seller,
					FormatGold(s.Item.Price),
					string(s.Item.Race),
					Stars(s.Item.Rarity),
					output.Urgency(s.Urgency, s.Label),
					ProgressBar(s.Progress, 12),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newWatchUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <user-id> <item-id>",
		Short: "Change fields of a watched auction",
		Long: `Change fields of a watched auction. Only the flags you pass are changed.
Setting --hours restarts the window from now and reschedules the email.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flags := cmd.Flags()

			var upd tracker.WatchUpdate
			if flags.Changed("card") {
				v, _ := flags.GetString("card")
				upd.CardName = &v
			}
			if flags.Changed("seller") {
				v, _ := flags.GetString("seller")
				upd.Seller = &v
			}
			if flags.Changed("price") {
				v, _ := flags.GetString("price")
				price, err := ParseGold(v)
				if err != nil {
					return err
				}
				upd.Price = price
			}
			if flags.Changed("desc") {
				v, _ := flags.GetString("desc")
				upd.Description = &v
			}
			if flags.Changed("race") {
				v, _ := flags.GetString("race")
				upd.Race = &v
			}
			if flags.Changed("rarity") {
				v, _ := flags.GetInt("rarity")
				upd.Rarity = &v
			}
			if flags.Changed("hours") {
				v, _ := flags.GetFloat64("hours")
				upd.HoursLeft = &v
			}
			if flags.Changed("has-bids") {
				v, _ := flags.GetBool("has-bids")
				upd.HasBids = &v
			}
			if flags.Changed("bidding") {
				v, _ := flags.GetBool("bidding")
				upd.ActivelyBidding = &v
			}

			item, err := app.Tracker.UpdateWatchItem(cmd.Context(), args[0], args[1], upd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(item)
			}
			output.Success("✓ Updated %s", item.CardName)
			return nil
		},
	}

	addWatchFlags(cmd)
	cmd.Flags().String("card", "", "card name")
	return cmd
}

func newWatchRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <user-id> <item-id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Stop watching an auction",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Tracker.DeleteWatchItem(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[1]})
			}
			output.Success("✓ Removed %s from watchlist", args[1])
			return nil
		},
	}
}

func newWatchMoveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <user-id> <item-id>",
		Short: "Move a watched auction to current bids",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			amountFlag, _ := cmd.Flags().GetString("amount")
			amount, err := ParseGold(amountFlag)
			if err != nil {
				return err
			}

			bid, err := app.Tracker.MoveWatchToBids(cmd.Context(), args[0], args[1], amount)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(bid)
			}
			output.Success("✓ Bidding %s on %s", FormatGold(bid.GoldAmount), bid.CardName)
			return nil
		},
	}

	cmd.Flags().String("amount", "", "bid amount in gold (default: the listed price)")
	return cmd
}

func newWatchImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <user-id> <file>",
		Short: "Replace the watchlist with items from a JSON file",
		Long: `Replace the whole watchlist with the items in a JSON file, in order.
The file holds an array in the format printed by 'watch add --json'. Use -
to read standard input. Items with an end time are scheduled.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			var (
				raw []byte
				err error
			)
			if args[1] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			var items []models.WatchlistItem
			if err := json.Unmarshal(raw, &items); err != nil {
				return fmt.Errorf("parsing %s: %w", args[1], err)
			}

			imported, err := app.Tracker.ImportWatchlist(cmd.Context(), args[0], items)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(imported)
			}
			output.Success("✓ Imported %d items", len(imported))
			return nil
		},
	}
}
