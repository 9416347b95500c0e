package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"auction-tracker/internal/models"
	"auction-tracker/internal/store"
)

func newNotificationsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif", "n"},
		Short:   "Inspect scheduled notifications and sent mail",
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List scheduled notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			userID, _ := cmd.Flags().GetString("user")
			statusFlag, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			status := models.NotificationStatus(statusFlag)
			if status != "" && !status.Valid() {
				return fmt.Errorf("unknown status %q: use scheduled, processing, completed or error", statusFlag)
			}

			records, err := app.Store.ListNotifications(cmd.Context(), store.NotificationFilter{
				UserID: userID,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if records == nil {
					records = []models.ScheduledNotification{}
				}
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Info("No notifications")
				return nil
			}

			table := NewTable(output, "USER", "ITEM", "CARD", "DUE", "STATUS", "ERROR")
			for _, n := range records {
				table.AddRow(
					n.UserID,
					n.ItemID,
					TruncateString(n.CardName, 28),
					FormatDateTime(n.ScheduledTime),
					statusText(output, n.Status),
					TruncateString(n.Error, 40),
				)
			}
			table.Render()
			return nil
		},
	}
	list.Flags().String("user", "", "only this user's notifications")
	list.Flags().String("status", "", "only notifications in this status")
	list.Flags().Int("limit", 50, "maximum records to show (0 = all)")
	cmd.AddCommand(list)

	outbox := &cobra.Command{
		Use:   "outbox",
		Short: "Show messages recorded in the outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			mails, err := app.Store.GetMail(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if mails == nil {
					mails = []models.MailRecord{}
				}
				return output.JSON(mails)
			}
			if len(mails) == 0 {
				output.Info("Outbox is empty")
				return nil
			}

			table := NewTable(output, "SENT", "TO", "SUBJECT")
			for _, m := range mails {
				table.AddRow(FormatDateTime(m.CreatedAt), m.To, m.Subject)
			}
			table.Render()
			return nil
		},
	}
	outbox.Flags().Int("limit", 20, "maximum messages to show")
	cmd.AddCommand(outbox)

	return cmd
}

func statusText(output *Output, s models.NotificationStatus) string {
	switch s {
	case models.StatusCompleted:
		return output.Green(string(s))
	case models.StatusError:
		return output.Red(string(s))
	case models.StatusProcessing:
		return output.Yellow(string(s))
	default:
		return string(s)
	}
}
