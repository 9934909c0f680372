// Package pipeline implements interfaces.IngestionPipeline: the staged
// parse -> match -> extract -> index flow over a batch of files, with
// partial-failure semantics and a bounded worker pool (§4.7). Grounded on
// the teacher's internal/models/crawler_job.go state-machine idiom and
// internal/services/workers/pool.go bounded worker pool, generalized from
// crawl jobs to the Document state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/matcher"
	"github.com/docuflow/docuflow/internal/models"
)

// costPerLLMCall is a flat per-call cost proxy for BatchAnalytics.CostEstimate.
// MatchResult doesn't surface token usage the way RetrievalEngine's LLM
// answer calls do (via CompletionUsage), so unlike that path there is no
// real token count to multiply by a per-token rate here.
const costPerLLMCall = 0.01

// Pipeline implements interfaces.IngestionPipeline.
type Pipeline struct {
	store     interfaces.Store
	parser    interfaces.ParserClient
	matcher   interfaces.TemplateMatcher
	extractor interfaces.Extractor
	config    *common.WorkersConfig
	logger    arbor.ILogger
}

// New constructs a Pipeline.
var _ interfaces.IngestionPipeline = (*Pipeline)(nil)

func New(store interfaces.Store, parser interfaces.ParserClient, tm interfaces.TemplateMatcher, ex interfaces.Extractor, config *common.WorkersConfig, logger arbor.ILogger) *Pipeline {
	return &Pipeline{store: store, parser: parser, matcher: tm, extractor: ex, config: config, logger: logger}
}

// IngestBatch fans each file out to the worker pool independently; one
// file's failure never aborts the rest (§4.7 partial-failure semantics).
func (p *Pipeline) IngestBatch(ctx context.Context, files []interfaces.BatchFile) (interfaces.BatchResult, error) {
	result := interfaces.BatchResult{}
	var mu sync.Mutex

	workers := newPool(p.config.PoolSize, p.logger)
	workers.start(ctx)

	for i := range files {
		file := files[i]
		workers.submit(func(ctx context.Context) {
			item, failure, source := p.processFile(ctx, file)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				result.Failed = append(result.Failed, *failure)
				return
			}
			result.Succeeded = append(result.Succeeded, *item)
			switch source {
			case interfaces.MatchSourceFastMatch:
				result.Analytics.FastMatches++
			case interfaces.MatchSourceLLMFallback:
				result.Analytics.LLMMatches++
				result.Analytics.CostEstimate += costPerLLMCall
			}
		})
	}

	workers.wait()
	return result, nil
}

// processFile runs one file through parse -> match -> (extract), updating
// Document status at each stage per §4.7's state machine. It returns
// either a succeeded item or a failure, never both, plus the match source
// (zero value if matching never ran) for analytics.
func (p *Pipeline) processFile(ctx context.Context, file interfaces.BatchFile) (*interfaces.BatchResultItem, *interfaces.BatchFailure, interfaces.MatchSource) {
	storagePath := "uploads/" + file.Filename
	doc, err := p.store.CreateDocument(ctx, file.Filename, "", file.Bytes, storagePath)
	if err != nil {
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorParseFailed, Message: fmt.Sprintf("failed to create document: %v", err)}, ""
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusAnalyzing, ""); err != nil {
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorParseFailed, Message: err.Error()}, ""
	}

	parsed, err := p.parse(ctx, doc, file.Bytes)
	if err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorParseFailed, Message: err.Error()}, ""
	}

	matchResult, source, err := p.matchTemplate(ctx, parsed, file.RequestedTemplateID)
	if err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorNoTemplate, Message: err.Error()}, ""
	}

	if matchResult.TemplateID == nil {
		if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusTemplateNeeded, ""); err != nil {
			return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorNoTemplate, Message: err.Error()}, source
		}
		return &interfaces.BatchResultItem{DocumentID: doc.ID, Filename: file.Filename, Status: models.DocumentStatusTemplateNeeded}, nil, source
	}

	if err := p.store.SetDocumentTemplate(ctx, doc.ID, *matchResult.TemplateID); err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorExtractFailed, Message: err.Error()}, source
	}

	// Only a confident fast-path match auto-advances to processing; an
	// LLM-suggested match waits in template_suggested for a user decision
	// (§4.7: "template_matched auto-advances; the other two wait").
	if source != interfaces.MatchSourceFastMatch {
		if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusTemplateSuggested, ""); err != nil {
			return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorNoTemplate, Message: err.Error()}, source
		}
		return &interfaces.BatchResultItem{DocumentID: doc.ID, Filename: file.Filename, Status: models.DocumentStatusTemplateSuggested}, nil, source
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusTemplateMatched, ""); err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorExtractFailed, Message: err.Error()}, source
	}
	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusProcessing, ""); err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorExtractFailed, Message: err.Error()}, source
	}

	if err := p.extract(ctx, doc.ID, *matchResult.TemplateID); err != nil {
		p.fail(ctx, doc.ID, err)
		code := interfaces.BatchErrorExtractFailed
		if common.IsIndexCapExceeded(err) {
			code = interfaces.BatchErrorIndexFailed
		}
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: code, Message: err.Error()}, source
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusCompleted, ""); err != nil {
		return nil, &interfaces.BatchFailure{Filename: file.Filename, Code: interfaces.BatchErrorExtractFailed, Message: err.Error()}, source
	}

	return &interfaces.BatchResultItem{DocumentID: doc.ID, Filename: file.Filename, Status: models.DocumentStatusCompleted}, nil, source
}

func (p *Pipeline) parse(ctx context.Context, doc *models.Document, bytes []byte) (*models.ParsedResult, error) {
	ctx, cancel := p.deadline(ctx, p.config.ParseDeadlineMS)
	defer cancel()

	parseJobID, parsed, err := p.parser.Parse(ctx, bytes)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	if err := p.store.CacheParseResult(ctx, doc.ID, parseJobID, parsed); err != nil {
		return nil, fmt.Errorf("failed to cache parse result: %w", err)
	}
	return parsed, nil
}

// matchTemplate honors an explicitly requested template id by skipping
// TemplateMatcher entirely — the caller already made the decision.
func (p *Pipeline) matchTemplate(ctx context.Context, parsed *models.ParsedResult, requested *string) (interfaces.MatchResult, interfaces.MatchSource, error) {
	if requested != nil {
		return interfaces.MatchResult{TemplateID: requested, Confidence: 1.0, Source: interfaces.MatchSourceFastMatch}, interfaces.MatchSourceFastMatch, nil
	}

	candidateFields := matcher.CandidateFields(parsed)
	result, err := p.matcher.Match(ctx, parsed, candidateFields)
	if err != nil {
		return interfaces.MatchResult{}, "", fmt.Errorf("template matching failed: %w", err)
	}
	return result, result.Source, nil
}

func (p *Pipeline) extract(ctx context.Context, documentID, templateID string) error {
	ctx, cancel := p.deadline(ctx, p.config.ExtractDeadlineMS)
	defer cancel()

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to reload document: %w", err)
	}
	tmpl, err := p.store.GetTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}
	if _, err := p.extractor.Extract(ctx, doc, tmpl); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return nil
}

func (p *Pipeline) deadline(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}

// fail marks a Document error, preserving its error-message, and logs the
// failure. It never returns an error itself: a failed status-update here
// would otherwise mask the original failure reason.
func (p *Pipeline) fail(ctx context.Context, documentID string, cause error) {
	message := cause.Error()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = "deadline exceeded: " + message
	}
	if err := p.store.UpdateDocumentStatus(context.Background(), documentID, models.DocumentStatusError, message); err != nil {
		p.logger.Error().Err(err).Str("document_id", documentID).Msg("failed to mark document as error after a pipeline failure")
	}
}
