package cli

import (
	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List storage collections holding documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Collections(cmd.Context())
	},
}
