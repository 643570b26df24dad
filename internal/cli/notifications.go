package cli

import (
	"github.com/spf13/cobra"

	"github.com/zhongyi-byte/stock-monitor/internal/app"
)

var notificationsOpts app.NotificationsOptions

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show recent notification records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowNotifications(cmd.Context(), notificationsOpts)
	},
}

func init() {
	notificationsCmd.Flags().IntVar(&notificationsOpts.Limit, "limit", 20, "Maximum number of records to show")
}
