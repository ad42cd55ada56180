package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"floor-oracle/internal/app"
)

var (
	showCollection string
	showLimit      int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent canonical floor records for a collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showCollection == "" {
			return fmt.Errorf("--collection is required")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Collection: showCollection,
			Limit:      showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCollection, "collection", "", "Asset collection name")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of records to display")
}
