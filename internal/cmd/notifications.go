package cmd

import (
	"github.com/spf13/cobra"

	"github.com/artcritique/brushup/pkg/notify"
	"github.com/artcritique/brushup/pkg/output"
	"github.com/artcritique/brushup/pkg/service"
)

var skipConfirm bool

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Notification commands",
	Long:    "View and manage critique and reaction notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		notifService, err := newNotificationService()
		if err != nil {
			return err
		}
		return notifService.ListNotifications(cmd.Context())
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for real-time notifications",
	Long:  "Stream notifications over the live channel, polling over HTTP while it is unavailable",
	RunE: func(cmd *cobra.Command, args []string) error {
		notifService, err := newNotificationService()
		if err != nil {
			return err
		}
		return notifService.WatchNotifications(cmd.Context())
	},
}

var notificationsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show unread notification count",
	RunE: func(cmd *cobra.Command, args []string) error {
		notifService, err := newNotificationService()
		if err != nil {
			return err
		}
		return notifService.GetUnreadCount(cmd.Context())
	},
}

var notificationsMarkReadCmd = &cobra.Command{
	Use:   "mark-read [notification-id]",
	Short: "Mark notifications as read",
	Long:  "Mark one notification as read, or all of them when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notifService, err := newNotificationService()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			return notifService.MarkAllAsRead(cmd.Context(), skipConfirm)
		}

		id, err := notify.ParseID(args[0])
		if err != nil {
			return err
		}
		return notifService.MarkNotificationAsRead(cmd.Context(), id)
	},
}

func newNotificationService() (*service.NotificationService, error) {
	token, err := accessToken()
	if err != nil {
		return nil, err
	}
	return service.NewNotificationService(token, output.NewPrinter(nil, output.GetOutputFormat()))
}

func init() {
	notificationsMarkReadCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation when marking all as read")

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
	notificationsCmd.AddCommand(notificationsCountCmd)
	notificationsCmd.AddCommand(notificationsMarkReadCmd)
}
