package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dropCollection string

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete all documents of a storage collection (irreversible)",
	Long: "Deletes every document of the named storage collection. A warning " +
		"is logged and the operation pauses for a grace period before anything " +
		"is deleted, leaving time to abort with Ctrl-C.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dropCollection == "" {
			return fmt.Errorf("--collection is required")
		}
		return getApp().Drop(cmd.Context(), dropCollection)
	},
}

func init() {
	dropCmd.Flags().StringVar(&dropCollection, "collection", "", "Storage collection to drop")
}
