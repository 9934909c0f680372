// Package retrieval implements interfaces.RetrievalEngine: execute a Plan
// against SearchIndex, apply the range/date filters SearchIndex itself can't
// express in FTS5, optionally rerank with a query embedding, and synthesize
// an answer with inline [[FIELD:name:document_id]] citation markers (§4.9).
// Grounded on the teacher's internal/services/chat/augmented_retrieval.go
// retrieval-then-LLM-synthesis flow and prompt_templates.go's prompt-shaping
// conventions; Reciprocal Rank Fusion and cosine similarity have no teacher
// analogue and are hand-written (see DESIGN.md).
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/planner"
)

// unverifiedPenalty is subtracted (as a multiplicative discount) from a
// hit's fused score when none of its cited facts have been human-verified,
// per §4.9's "(1 - verified penalty) x fused score" ordering rule.
const unverifiedPenalty = 0.05

// Engine implements interfaces.RetrievalEngine.
type Engine struct {
	index    interfaces.SearchIndex
	store    interfaces.Store
	llm      interfaces.LLMClient      // nil when no answer-generation LLM is configured
	embedder interfaces.EmbedderClient // nil when semantic rerank is disabled
	citer    interfaces.CitationTracker // nil when no CitationTracker is configured
	config   *common.QueryConfig
	logger   arbor.ILogger
}

// New constructs an Engine. llm, embedder, and citer may all be nil; Retrieve
// degrades gracefully in each case rather than failing the query.
var _ interfaces.RetrievalEngine = (*Engine)(nil)

func New(index interfaces.SearchIndex, store interfaces.Store, llm interfaces.LLMClient, embedder interfaces.EmbedderClient, citer interfaces.CitationTracker, config *common.QueryConfig, logger arbor.ILogger) *Engine {
	return &Engine{index: index, store: store, llm: llm, embedder: embedder, citer: citer, config: config, logger: logger}
}

// docContext bundles the Document + ExtractedFields loaded once per
// candidate hit, reused across filtering, fact-building, and tie-breaking.
type docContext struct {
	hit      models.SearchHit
	document *models.Document
	fields   []models.ExtractedField
}

// Retrieve runs the full candidate-generation/filter/rerank/answer pipeline
// described in §4.9.
func (e *Engine) Retrieve(ctx context.Context, plan models.Plan, req models.QueryRequest) (models.QueryResponse, error) {
	start := time.Now()

	topK := e.config.TopK
	if topK <= 0 {
		topK = 50
	}

	hits, diag, err := e.index.Search(ctx, plan, topK)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("search failed: %w", err)
	}

	contexts, err := e.loadContexts(ctx, hits)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("failed to load hit contexts: %w", err)
	}

	contexts, err = e.applyRangeAndDateFilters(ctx, contexts, plan.Filters)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("failed to apply range/date filters: %w", err)
	}

	if len(contexts) == 0 {
		return e.emptyResponse(plan, diag, start), nil
	}

	semanticUsed := e.rerank(ctx, plan.TextQuery, contexts)
	diag.SemanticRerankUsed = semanticUsed
	applyVerifiedPenalty(contexts)

	sort.SliceStable(contexts, func(i, j int) bool {
		si, sj := contexts[i].hit.Score, contexts[j].hit.Score
		if si != sj {
			return si > sj
		}
		return contexts[i].document.CreatedAt.After(contexts[j].document.CreatedAt)
	})

	answerK := e.config.AnswerK
	if answerK <= 0 || answerK > len(contexts) {
		answerK = len(contexts)
	}
	selected := contexts[:answerK]

	var aggResult *aggregationResult
	if plan.Aggregation != nil {
		aggResult, err = e.computeAggregation(ctx, plan.Aggregation, selected)
		if err != nil {
			return models.QueryResponse{}, fmt.Errorf("failed to compute aggregation: %w", err)
		}
	}

	facts := buildFacts(selected, aggResult)
	answer, usedLLM := e.composeAnswer(ctx, req.Query, plan, facts, aggResult)

	var citations []models.Citation
	lowConfidenceCount := 0
	auditRecommended := false
	if e.citer != nil {
		citations, err = e.citer.ResolveCitations(ctx, answer, common.NewQueryID(), req.Query, req.QuerySource)
		if err != nil {
			e.logger.Warn().Err(err).Msg("citation resolution failed; returning answer without citations")
		}
		for _, c := range citations {
			if c.AuditLink != "" {
				lowConfidenceCount++
				auditRecommended = true
			}
		}
	}

	sources := make([]models.SourceDoc, 0, len(selected))
	for _, c := range selected {
		sources = append(sources, models.SourceDoc{
			DocumentID: c.document.ID,
			Filename:   c.document.Filename,
			Score:      c.hit.Score,
		})
	}

	return models.QueryResponse{
		Answer:             answer,
		Citations:          citations,
		LowConfidenceCount: lowConfidenceCount,
		AuditRecommended:   auditRecommended,
		Sources:            sources,
		PlanDiagnostics: models.PlanDiagnostics{
			Intent:            plan.Intent,
			Confidence:        plan.Confidence,
			UsedLLM:           plan.UseLLMRefinement || usedLLM,
			FuzzyFallbackUsed: diag.FuzzyFallbackUsed,
		},
		TimingMS: time.Since(start).Milliseconds(),
	}, nil
}

// loadContexts fetches the Document + ExtractedFields for each hit once, so
// later filtering/fact-building/tie-breaking never re-query the Store for
// the same document.
func (e *Engine) loadContexts(ctx context.Context, hits []models.SearchHit) ([]*docContext, error) {
	contexts := make([]*docContext, 0, len(hits))
	for _, h := range hits {
		doc, err := e.store.GetDocument(ctx, h.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load document %s: %w", h.DocumentID, err)
		}
		fields, err := e.store.GetExtractedFields(ctx, h.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load fields for document %s: %w", h.DocumentID, err)
		}
		contexts = append(contexts, &docContext{hit: h, document: doc, fields: fields})
	}
	return contexts, nil
}

// emptyResponse is returned when no candidate survives filtering, per §7's
// query-path rule: never a 500, always a reformulation hint instead.
func (e *Engine) emptyResponse(plan models.Plan, diag models.SearchDiagnostics, start time.Time) models.QueryResponse {
	suggestions := planner.Reformulations(plan.TextQuery, 3)
	answer := "No matching documents were found."
	if len(suggestions) > 0 {
		answer += " Try rephrasing, for example: " + suggestions[0]
	}
	return models.QueryResponse{
		Answer: answer,
		PlanDiagnostics: models.PlanDiagnostics{
			Intent:            plan.Intent,
			Confidence:        plan.Confidence,
			UsedLLM:           plan.UseLLMRefinement,
			FuzzyFallbackUsed: diag.FuzzyFallbackUsed,
		},
		TimingMS: time.Since(start).Milliseconds(),
	}
}
