package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docuflow/docuflow/internal/interfaces"
)

var ingestDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Batch-ingest every file in a local folder",
	Long:  `Reads every regular file under --dir, runs it through the ingestion pipeline (parse -> match -> extract -> index), and prints a summary. One-shot, for operator/CLI use.`,
	Run:   runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Folder of documents to ingest (required)")
	ingestCmd.MarkFlagRequired("dir")
}

func runIngest(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	app, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize docuflow components")
	}
	defer app.Close()

	files, err := readBatchFiles(ingestDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", ingestDir).Msg("failed to read ingest directory")
	}
	if len(files) == 0 {
		logger.Warn().Str("dir", ingestDir).Msg("no files found to ingest")
		return
	}

	logger.Info().Int("count", len(files)).Str("dir", ingestDir).Msg("starting batch ingest")

	result, err := app.pipeline.IngestBatch(ctx, files)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest batch failed")
	}

	fmt.Printf("Ingested %d file(s): %d succeeded, %d failed\n", len(files), len(result.Succeeded), len(result.Failed))
	fmt.Printf("Matching: %d fast-path, %d LLM fallback (est. cost $%.2f)\n", result.Analytics.FastMatches, result.Analytics.LLMMatches, result.Analytics.CostEstimate)
	for _, item := range result.Succeeded {
		fmt.Printf("  ok   %-40s %s (%s)\n", item.Filename, item.DocumentID, item.Status)
	}
	for _, failure := range result.Failed {
		fmt.Printf("  fail %-40s %s: %s\n", failure.Filename, failure.Code, failure.Message)
	}
}

func readBatchFiles(dir string) ([]interfaces.BatchFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []interfaces.BatchFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		bytes, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to read file; skipping")
			continue
		}
		files = append(files, interfaces.BatchFile{Filename: entry.Name(), Bytes: bytes})
	}
	return files, nil
}
