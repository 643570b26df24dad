package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhongyi-byte/stock-monitor/internal/app"
)

var (
	exportSymbol    string
	exportFrom      string
	exportTo        string
	exportCSV       string
	exportPNG       string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export price history for a symbol as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Symbol:    exportSymbol,
			CSVPath:   exportCSV,
			PNGPath:   exportPNG,
			MaxPoints: exportMaxPoints,
		}

		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		opts.From = from

		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}
		opts.To = to

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s, expected RFC3339: %w", name, err)
	}
	return &t, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol, "symbol", "", "Symbol to export")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Window start (RFC3339), defaults to 30 days ago")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Window end (RFC3339), defaults to now")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "Write price rows to this CSV file")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "Render a price chart to this PNG file")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Downsample to at most this many points (0 uses config)")

	_ = exportCmd.MarkFlagRequired("symbol")
}
