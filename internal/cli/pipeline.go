package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rate-relay/internal/app"
)

var produceFile string

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Fetch the rate feed once and queue its records",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().Produce(cmd.Context(), app.ProduceOptions{File: produceFile})
		if err != nil {
			return err
		}
		if res.RateDate == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no rate date found; nothing queued")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d records for %s\n", res.Emitted, res.RateDate)
		return nil
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Drain the queue once into the selected sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().Consume(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sink=%s done=%d failed=%d skipped=%d\n", report.Sink, report.Done, report.Failed, report.Skipped)
		if report.FinalizeErr != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: finalize failed: %v\n", report.FinalizeErr)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Produce and consume on every scheduler interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres queue schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	produceCmd.Flags().StringVar(&produceFile, "file", "", "Parse a local feed file instead of downloading")
}
