package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docsheet/internal/config"
	"docsheet/internal/logger"
)

var version = "1.0.0"

// appConfig is loaded before every subcommand runs.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "docsheet",
	Short: "docsheet - turn scanned documents into spreadsheets",
	Long: `docsheet recognizes text in images, PDFs and scans and converts the result
into a spreadsheet grid that can be exported as CSV, XLSX or pushed to Google Sheets.

Recognized tables are used as-is. Without a table, rows are taken from the
text lines and the column delimiter (comma, tab, semicolon, pipe or
whitespace) is inferred from the first line.

Configuration is read from the environment (and .env), optionally merged
with a config file given by --config or DOCSHEET_CONFIG.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("docsheet executed")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (yaml, toml, json or env; default $DOCSHEET_CONFIG)")
}

// loadConfig reads the configuration and reinitializes the logger from it.
func loadConfig(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		configFile = os.Getenv("DOCSHEET_CONFIG")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appConfig = cfg
	return nil
}
