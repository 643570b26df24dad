package cli

import (
	"github.com/spf13/cobra"

	"github.com/zhongyi-byte/stock-monitor/internal/app"
)

var addOpts app.AddOptions

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a monitoring strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AddStrategy(cmd.Context(), addOpts)
	},
}

func init() {
	addCmd.Flags().StringVar(&addOpts.Name, "name", "", "Strategy name")
	addCmd.Flags().StringVar(&addOpts.Symbol, "symbol", "", "Asset symbol, e.g. AAPL, 0700.HK, BTC-USD")
	addCmd.Flags().StringVar(&addOpts.Condition, "condition", "", "Trigger condition: below or above")
	addCmd.Flags().StringVar(&addOpts.Target, "target", "", "Target price")
	addCmd.Flags().StringVar(&addOpts.Action, "action", "notify", "Action on trigger: notify, buy or sell")

	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("symbol")
	_ = addCmd.MarkFlagRequired("condition")
	_ = addCmd.MarkFlagRequired("target")
}
