package cli

import (
	"github.com/spf13/cobra"

	"github.com/zhongyi-byte/stock-monitor/internal/app"
)

var listOpts app.ListOptions

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListStrategies(cmd.Context(), listOpts)
	},
}

func init() {
	listCmd.Flags().StringVar(&listOpts.Status, "status", "", "Filter by status: active, triggered or disabled")
	listCmd.Flags().StringVar(&listOpts.Symbol, "symbol", "", "Filter by symbol")
	listCmd.Flags().BoolVar(&listOpts.WithPrices, "prices", false, "Fetch and show the current price per symbol")
}
