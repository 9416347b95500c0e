package cli

import (
	"time"

	"github.com/spf13/cobra"

	"auction-tracker/internal/expiry"
	"auction-tracker/internal/tracker"
)

func newBidsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bids",
		Aliases: []string{"bid", "b"},
		Short:   "Manage current bids",
	}

	cmd.AddCommand(newBidsAddCmd(app))
	cmd.AddCommand(newBidsListCmd(app))
	cmd.AddCommand(newBidsUpdateCmd(app))
	cmd.AddCommand(newBidsRemoveCmd(app))

	return cmd
}

func newBidsAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add <user-id> <card-name>",
		Short:   "Record a bid you placed",
		Example: `  auction-tracker bids add alice "Storm Giant" --amount 420 --hours 6 --seller Mordred`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			in := tracker.BidInput{CardName: args[1]}
			in.Seller, _ = cmd.Flags().GetString("seller")
			in.HoursLeft, _ = cmd.Flags().GetFloat64("hours")
			in.LegacyHours, _ = cmd.Flags().GetFloat64("legacy-hours")
			in.Outbid, _ = cmd.Flags().GetBool("outbid")
			in.PlanToRebid, _ = cmd.Flags().GetBool("rebid")

			var err error
			amount, _ := cmd.Flags().GetString("amount")
			if in.GoldAmount, err = ParseGold(amount); err != nil {
				return err
			}
			ends, _ := cmd.Flags().GetString("ends")
			if in.EndTime, err = ParseEndTime(ends); err != nil {
				return err
			}

			bid, err := app.Tracker.AddBid(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(bid)
			}
			output.Success("✓ Bid of %s on %s recorded (id %s)", FormatGold(bid.GoldAmount), bid.CardName, bid.ID)
			return nil
		},
	}

	cmd.Flags().String("amount", "", "bid amount in gold")
	cmd.Flags().String("seller", "", "seller name")
	cmd.Flags().Float64("hours", 0, "hours until the auction ends")
	cmd.Flags().String("ends", "", "auction end time (RFC 3339 or \"YYYY-MM-DD HH:MM\")")
	cmd.Flags().Float64("legacy-hours", 0, "store a bare hours-left countdown instead of an end time")
	cmd.Flags().Bool("outbid", false, "you have been outbid")
	cmd.Flags().Bool("rebid", false, "you plan to bid again")
	return cmd
}

func newBidsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list <user-id>",
		Aliases: []string{"ls"},
		Short:   "List current bids",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			data, err := app.Tracker.UserData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(data.CurrentBids)
			}
			if len(data.CurrentBids) == 0 {
				output.Info("No current bids")
				return nil
			}

			now := time.Now()
			output.Bold("💰 Current bids (%d)", len(data.CurrentBids))
			table := NewTable(output, "ID", "CARD", "SELLER", "AMOUNT", "PLACED", "TIME LEFT", "STATUS")
			for _, b := range data.CurrentBids {
				r := expiry.Resolve(b.Timing, now)

				status := output.Green("leading")
				switch {
				case b.Outbid && b.PlanToRebid:
					status = output.Yellow("outbid, rebid")
				case b.Outbid:
					status = output.Red("outbid")
				}

				table.AddRow(
					b.ID,
					TruncateString(b.CardName, 28),
					b.Seller,
					FormatGold(b.GoldAmount),
					FormatDateTime(b.BidTime),
					output.Urgency(expiry.Classify(r), expiry.Format(r.Hours)),
					status,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newBidsUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <user-id> <bid-id>",
		Short: "Change the amount or outbid state of a bid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flags := cmd.Flags()

			var upd tracker.BidUpdate
			if flags.Changed("amount") {
				v, _ := flags.GetString("amount")
				amount, err := ParseGold(v)
				if err != nil {
					return err
				}
				upd.GoldAmount = amount
			}
			if flags.Changed("outbid") {
				v, _ := flags.GetBool("outbid")
				upd.Outbid = &v
			}
			if flags.Changed("rebid") {
				v, _ := flags.GetBool("rebid")
				upd.PlanToRebid = &v
			}
			if flags.Changed("hours") {
				v, _ := flags.GetFloat64("hours")
				upd.HoursLeft = &v
			}

			bid, err := app.Tracker.UpdateBid(cmd.Context(), args[0], args[1], upd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(bid)
			}
			output.Success("✓ Updated bid on %s", bid.CardName)
			return nil
		},
	}

	cmd.Flags().String("amount", "", "bid amount in gold")
	cmd.Flags().Float64("hours", 0, "hours until the auction ends")
	cmd.Flags().Bool("outbid", false, "you have been outbid")
	cmd.Flags().Bool("rebid", false, "you plan to bid again")
	return cmd
}

func newBidsRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <user-id> <bid-id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a bid",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Tracker.DeleteBid(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[1]})
			}
			output.Success("✓ Removed bid %s", args[1])
			return nil
		},
	}
}
