package cli

import (
	"github.com/spf13/cobra"

	"floor-oracle/internal/app"
)

var (
	exportCollection string
	exportCSVPath    string
	exportPNGPath    string
	exportMaxPoints  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export canonical floor history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Collection: exportCollection,
			CSVPath:    exportCSVPath,
			PNGPath:    exportPNGPath,
			MaxPoints:  exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCollection, "collection", "", "Asset collection name")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "CSV output path")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "PNG chart output path")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum records to export (default from config)")
}
