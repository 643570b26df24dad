package cli

import (
	"github.com/spf13/cobra"
)

var disableID int64

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable an active strategy without triggering it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DisableStrategy(cmd.Context(), disableID)
	},
}

func init() {
	disableCmd.Flags().Int64Var(&disableID, "id", 0, "Strategy id to disable")
	_ = disableCmd.MarkFlagRequired("id")
}
