package main

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/citation"
	"github.com/docuflow/docuflow/internal/clients/embedder"
	"github.com/docuflow/docuflow/internal/clients/llm"
	"github.com/docuflow/docuflow/internal/clients/parser"
	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/extractor"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/matcher"
	"github.com/docuflow/docuflow/internal/pipeline"
	"github.com/docuflow/docuflow/internal/planner"
	"github.com/docuflow/docuflow/internal/retrieval"
	"github.com/docuflow/docuflow/internal/search"
	"github.com/docuflow/docuflow/internal/storage/cache"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
	"github.com/docuflow/docuflow/internal/validator"
)

// components bundles every wired subsystem a subcommand might need, so
// serve/ingest can share one construction path and close it the same way.
type components struct {
	store    *sqlite.Store
	cacheDB  *cache.DB
	pipeline interfaces.IngestionPipeline
	query    interfaces.QueryService
	citer    interfaces.CitationTracker
	auditQ   interfaces.AuditQueue

	sigCache *cache.SignatureCache
	embedder interfaces.EmbedderClient
}

func (c *components) Close() {
	if c.cacheDB != nil {
		c.cacheDB.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

// buildComponents wires every §4 component per SPEC_FULL.md's package
// layout, following the matcher/planner/retrieval nilable-LLM convention:
// the Claude and embedder clients are constructed only when their API keys
// / enabled flags are set, and left as nil interface values otherwise.
func buildComponents(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*components, error) {
	store, err := sqlite.NewStore(logger, &cfg.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cacheDB, err := cache.NewDB(logger, &cfg.Storage.Cache)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	queryCache := cache.NewQueryCache(cacheDB)

	searchIndex := search.New(store.DB(), store, &cfg.Search, logger)

	parserClient, err := parser.New(&cfg.Parser, logger)
	if err != nil {
		cacheDB.Close()
		store.Close()
		return nil, fmt.Errorf("failed to construct parser client: %w", err)
	}

	var llmClient interfaces.LLMClient
	if cfg.Claude.APIKey != "" {
		c, err := llm.New(&cfg.Claude, logger)
		if err != nil {
			cacheDB.Close()
			store.Close()
			return nil, fmt.Errorf("failed to construct llm client: %w", err)
		}
		llmClient = c
	} else {
		logger.Warn().Msg("claude api key not configured; LLM fallback and answer composition are disabled")
	}

	var embedderClient interfaces.EmbedderClient
	if cfg.Embedder.Enabled {
		c, err := embedder.New(ctx, &cfg.Embedder, logger)
		if err != nil {
			cacheDB.Close()
			store.Close()
			return nil, fmt.Errorf("failed to construct embedder client: %w", err)
		}
		if c != nil {
			embedderClient = c
		}
	}

	tm := matcher.New(searchIndex, store, llmClient, &cfg.Matching, logger)
	v := validator.New(&cfg.Validation, logger)
	ex := extractor.New(parserClient, v, store, searchIndex, embedderClient, &cfg.Validation, logger)
	ingestPipeline := pipeline.New(store, parserClient, tm, ex, &cfg.Workers, logger)

	citer := citation.New(store, &cfg.Validation, logger)
	auditQ := citation.NewQueue(store, logger)

	qp := planner.New(store, llmClient, &cfg.Query, logger)
	engine := retrieval.New(searchIndex, store, llmClient, embedderClient, citer, &cfg.Query, logger)
	queryService := retrieval.NewService(qp, engine, queryCache, cfg.Query.QueryDeadlineMS, logger)

	return &components{
		store:    store,
		cacheDB:  cacheDB,
		pipeline: ingestPipeline,
		query:    queryService,
		citer:    citer,
		auditQ:   auditQ,
		sigCache: cache.NewSignatureCache(cacheDB),
		embedder: embedderClient,
	}, nil
}
