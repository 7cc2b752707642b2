package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/pkg/models"
)

func NewNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List and acknowledge notifications",
	}
	cmd.AddCommand(newNotificationsListCmd(), newNotificationsReadCmd())
	return cmd
}

func newNotificationsListCmd() *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				all, err := e.Manager().FetchNotifications(cmd.Context())
				if err != nil {
					return err
				}
				var notifications []models.Notification
				for _, n := range all {
					if !unread || !n.Read {
						notifications = append(notifications, n)
					}
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, notifications)
				}

				var rows [][]string
				for _, n := range notifications {
					read := ""
					if !n.Read {
						read = "new"
					}
					rows = append(rows, []string{n.ID, read, n.Timestamp, n.Title})
				}
				printRows(cmd, []string{"ID", "", "TIME", "TITLE"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&unread, "unread", "u", false, "Only show unread notifications")
	return cmd
}

func newNotificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification-id>...",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				m := e.Manager()
				if _, err := m.FetchNotifications(cmd.Context()); err != nil {
					return err
				}
				for _, id := range args {
					if err := m.MarkNotificationRead(cmd.Context(), id); err != nil {
						return err
					}
				}
				printSuccess(cmd, "Marked %d notification(s) as read", len(args))
				return nil
			})
		},
	}
}
