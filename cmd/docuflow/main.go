package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
)

var (
	configFiles []string

	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "docuflow",
	Short: "Document Intelligence Platform",
	Long:  `docuflow ingests business documents, extracts structured fields per template, and answers natural-language queries over them with citations.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		bootstrap()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.AddCommand(serveCmd, ingestCmd, migrateCmd, versionCmd)
}

// bootstrap loads configuration and brings up the logger, shared by every
// subcommand's PersistentPreRun (teacher's cmd/quaero/main.go startup
// sequence, generalized from a single entrypoint to cobra's PersistentPreRun).
func bootstrap() {
	if len(configFiles) == 0 {
		if _, err := os.Stat("docuflow.toml"); err == nil {
			configFiles = append(configFiles, "docuflow.toml")
		}
	}

	var err error
	config, err = common.LoadConfig(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger = common.SetupLogger(config)
	common.InstallCrashHandler("./logs")

	common.PrintBanner(config, logger)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
