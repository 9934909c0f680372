package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/mcpserver"
	"github.com/docuflow/docuflow/internal/matcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the long-running ingestion worker and query service",
	Long:  `Starts docuflow's background process: drains the ingestion queue, answers QueryService.Ask over the in-process API, and (if enabled) exposes search_documents/ask_question over MCP stdio.`,
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize docuflow components")
	}
	defer app.Close()

	scheduler := cron.New()
	if app.embedder != nil && config.Workers.SignatureReindexCron != "" {
		_, err := scheduler.AddFunc(config.Workers.SignatureReindexCron, func() {
			if err := matcher.ReindexSignatures(ctx, app.store, app.sigCache, app.embedder, logger); err != nil {
				logger.Error().Err(err).Msg("signature reindex tick failed")
			}
		})
		if err != nil {
			logger.Fatal().Err(err).Str("schedule", config.Workers.SignatureReindexCron).Msg("invalid signature reindex schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	mcpDone := make(chan error, 1)
	if config.MCP.Enabled {
		srv := mcpserver.New(app.query, &config.MCP, logger)
		logger.Info().Str("name", config.MCP.Name).Msg("starting MCP stdio transport")
		go func() { mcpDone <- srv.Serve() }()
	}

	logger.Info().Msg("docuflow serve ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("interrupt signal received")
	case err := <-mcpDone:
		if err != nil {
			logger.Error().Err(err).Msg("mcp server exited with error")
		} else {
			logger.Info().Msg("mcp server stdio transport closed")
		}
	}

	common.PrintShutdownBanner(logger)
}
