package cli

import (
	"github.com/spf13/cobra"

	"rate-relay/internal/app"
)

var (
	inspectFile string
	inspectPNG  string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Parse a local feed file and print its records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		a.Out = cmd.OutOrStdout()
		return a.Inspect(cmd.Context(), app.InspectOptions{File: inspectFile, PNGPath: inspectPNG})
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFile, "file", "", "Feed XML file to parse")
	inspectCmd.Flags().StringVar(&inspectPNG, "png", "", "Path to write a transfer-rate bar chart")
	_ = inspectCmd.MarkFlagRequired("file")
}
