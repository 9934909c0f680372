package interfaces

import (
	"context"

	"github.com/docuflow/docuflow/internal/models"
)

// ExtractedValue is one field's raw extraction result before validation.
type ExtractedValue struct {
	Value      models.FieldValue
	Confidence float64
	Page       *int
	BBox       *models.BBox
}

// ParserClient wraps the external Parser service (§4.3). The jobid://
// form MUST reuse a prior parse; ExtractStructured must never re-upload
// bytes for a sourceRef beginning with "jobid://".
type ParserClient interface {
	Parse(ctx context.Context, bytes []byte) (parseJobID string, result *models.ParsedResult, err error)
	ExtractStructured(ctx context.Context, sourceRef string, fields []models.FieldSpec) (map[string]ExtractedValue, error)
}

// CompletionUsage reports token accounting for a single LLM call, including
// prompt-cache hits (§4.3's cacheable system prefix contract).
type CompletionUsage struct {
	CachedTokens int
	TotalTokens  int
}

// CompletionOptions configures an LLMClient.Complete call.
type CompletionOptions struct {
	// CacheableSystemPrefix is marked for prompt caching; repeated calls
	// within a short TTL are billed at a reduced rate.
	CacheableSystemPrefix string
	MaxTokens             int
	Temperature           float32
}

// LLMClient wraps the external LLM completion service (§4.3). Narrow
// capability set used by TemplateMatcher/QueryPlanner/RetrievalEngine:
// {Complete, CompleteJSON}.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (text string, usage CompletionUsage, err error)
	CompleteJSON(ctx context.Context, prompt string, schema []byte, opts CompletionOptions, out interface{}) (usage CompletionUsage, err error)
}

// EmbedderClient wraps the external vector embedding service (§4.3).
// Narrow capability set: {Embed}.
type EmbedderClient interface {
	// Embed returns a fixed-dimension vector. Transient failures should be
	// retried internally (up to 3 attempts); permanent failures return an
	// error wrapping common.ErrMalformedExternal so callers can skip the
	// semantic index rather than abort the pipeline.
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
