package cli

import (
	"github.com/spf13/cobra"

	"github.com/zhongyi-byte/stock-monitor/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a pass against one injected price instead of live sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Simulate(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Symbol, "symbol", "", "Symbol to inject the price for")
	simulateCmd.Flags().StringVar(&simulateOpts.Price, "price", "", "Injected price")

	_ = simulateCmd.MarkFlagRequired("symbol")
	_ = simulateCmd.MarkFlagRequired("price")
}
