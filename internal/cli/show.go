package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rate-relay/internal/app"
)

var (
	showLimit  int
	showStatus string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Status: showStatus,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of items to display")
	showCmd.Flags().StringVar(&showStatus, "status", "", "Only show items in this status (pending, processing, done, failed)")
}
