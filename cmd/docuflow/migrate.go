package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bootstrap the schema and seed templates",
	Long:  `Opens the SQLite store (applying its schema, a no-op if already current) and loads any YAML template definitions under templates.dir that are not already present by name.`,
	Run:   runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) {
	store, err := sqlite.NewStore(logger, &config.Storage.SQLite)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	logger.Info().Str("path", config.Storage.SQLite.Path).Msg("schema up to date")

	if config.Templates.Dir == "" {
		return
	}
	if err := seedTemplates(context.Background(), store, config.Templates.Dir); err != nil {
		logger.Fatal().Err(err).Str("dir", config.Templates.Dir).Msg("failed to seed templates")
	}
}

// seedTemplates loads one Template per YAML file under dir and creates any
// whose name isn't already registered; templates.name carries a UNIQUE
// constraint, so re-running migrate is idempotent.
func seedTemplates(ctx context.Context, store *sqlite.Store, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.Warn().Str("dir", dir).Msg("templates directory does not exist; skipping seed")
		return nil
	}
	if err != nil {
		return err
	}

	existing, err := store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list existing templates: %w", err)
	}
	byName := make(map[string]bool, len(existing))
	for _, t := range existing {
		byName[t.Name] = true
	}

	for _, entry := range entries {
		if entry.IsDir() || (!strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to read template file; skipping")
			continue
		}

		var tmpl models.Template
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to parse template file; skipping")
			continue
		}

		if byName[tmpl.Name] {
			logger.Debug().Str("name", tmpl.Name).Msg("template already seeded; skipping")
			continue
		}

		if err := store.CreateTemplate(ctx, &tmpl); err != nil {
			return fmt.Errorf("failed to create template %q from %s: %w", tmpl.Name, path, err)
		}
		logger.Info().Str("name", tmpl.Name).Str("path", path).Msg("seeded template")
	}
	return nil
}
