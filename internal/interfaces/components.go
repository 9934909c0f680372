package interfaces

import (
	"context"

	"github.com/docuflow/docuflow/internal/models"
)

// MatchSource records how TemplateMatcher arrived at its decision (§4.4).
type MatchSource string

const (
	MatchSourceFastMatch       MatchSource = "fast_match"
	MatchSourceLLMFallback     MatchSource = "llm_fallback"
	MatchSourceNeedsNewTemplate MatchSource = "needs_new_template"
)

// MatchResult is TemplateMatcher.Match's output.
type MatchResult struct {
	TemplateID *string
	Confidence float64
	Source     MatchSource
}

// TemplateMatcher picks the template that best describes a parsed document.
type TemplateMatcher interface {
	Match(ctx context.Context, parsed *models.ParsedResult, candidateFields []string) (MatchResult, error)
}

// FieldValidation is the Validator's per-field result (§4.5).
type FieldValidation struct {
	Status ValidationOutcome
	Errors []string
}

// ValidationOutcome mirrors models.ValidationStatus restricted to the
// Validator's own output space (never "unchecked").
type ValidationOutcome string

const (
	ValidationOutcomeValid   ValidationOutcome = "valid"
	ValidationOutcomeWarning ValidationOutcome = "warning"
	ValidationOutcomeError   ValidationOutcome = "error"
)

// Validator enforces schema types and business rules on an extracted-field map.
type Validator interface {
	Validate(ctx context.Context, tmpl *models.Template, values map[string]ExtractedValue) (map[string]FieldValidation, error)
}

// Extractor produces validated, prioritized ExtractedFields for a Document
// with a chosen template.
type Extractor interface {
	Extract(ctx context.Context, doc *models.Document, tmpl *models.Template) ([]models.ExtractedField, error)
}

// BatchFile is one input to IngestionPipeline.IngestBatch.
type BatchFile struct {
	Filename          string
	Bytes             []byte
	RequestedTemplateID *string
}

// BatchResultItem is one succeeded document summary.
type BatchResultItem struct {
	DocumentID string
	Filename   string
	Status     models.DocumentStatus
}

// BatchErrorCode enumerates IngestBatch failure codes (§6).
type BatchErrorCode string

const (
	BatchErrorParseFailed   BatchErrorCode = "parse_failed"
	BatchErrorNoTemplate    BatchErrorCode = "no_template"
	BatchErrorExtractFailed BatchErrorCode = "extract_failed"
	BatchErrorIndexFailed   BatchErrorCode = "index_failed"
)

// BatchFailure is one failed document summary.
type BatchFailure struct {
	Filename string
	Code     BatchErrorCode
	Message  string
}

// BatchAnalytics reports aggregate counters for a batch run.
type BatchAnalytics struct {
	FastMatches  int
	LLMMatches   int
	CostEstimate float64
}

// BatchResult is IngestionPipeline.IngestBatch's output (§6).
type BatchResult struct {
	Succeeded []BatchResultItem
	Failed    []BatchFailure
	Analytics BatchAnalytics
}

// IngestionPipeline orchestrates parse -> match -> extract -> index per
// file with partial-failure semantics (§4.7).
type IngestionPipeline interface {
	IngestBatch(ctx context.Context, files []BatchFile) (BatchResult, error)
}

// QueryPlanner turns a natural-language query + caller context into a Plan.
type QueryPlanner interface {
	Plan(ctx context.Context, req models.QueryRequest) (models.Plan, error)
}

// RetrievalEngine executes a Plan and returns answer + citations + diagnostics.
type RetrievalEngine interface {
	Retrieve(ctx context.Context, plan models.Plan, req models.QueryRequest) (models.QueryResponse, error)
}

// QueryService is the external-facing contract combining planner +
// retrieval engine behind a single Ask call (§6).
type QueryService interface {
	Ask(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
}

// CitationTracker resolves [[FIELD:name:doc_id]] markers and records
// provenance (§4.10).
type CitationTracker interface {
	ResolveCitations(ctx context.Context, answer string, queryID, queryText string, source models.QuerySource) ([]models.Citation, error)
}

// AuditQueue exposes the human-verification review queue (§4.10, §6).
type AuditQueue interface {
	List(ctx context.Context, filter AuditFilter, page, size int) ([]models.FieldWithContext, int, map[models.AuditPriority]int, error)
	Verify(ctx context.Context, fieldID string, action models.VerificationAction, correctedValue *string, notes, reviewerID string) (*models.ExtractedField, *models.FieldWithContext, error)
}
