package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rate-relay/internal/app"
	"rate-relay/internal/config"
	"rate-relay/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	sinkKind  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "raterelay",
	Short: "Relay the daily exchange-rate feed to a spreadsheet, Kafka or an API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		cfg.Sink.Kind = cfg.ResolveSinkKind(sinkKind)
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&sinkKind, "sink", "", "Override sink.kind (excel, kafka, api)")

	rootCmd.AddCommand(produceCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
