package interfaces

import (
	"context"

	"github.com/docuflow/docuflow/internal/models"
)

// SearchIndex provides keyword, fuzzy, and optional vector search over
// SearchDocs (§4.2). TemplateMatcher only needs the narrower
// {FindSimilarTemplates, IndexTemplateSignature} set (TemplateIndexer).
type SearchIndex interface {
	// IndexDocument is an idempotent write; recomputes the weighted text
	// vector from the configured field-weight map. Must complete before
	// the document's status transitions to completed.
	IndexDocument(ctx context.Context, doc models.SearchDoc) error

	// IndexTemplateSignature writes/overwrites a template fingerprint.
	IndexTemplateSignature(ctx context.Context, sig models.SignatureDoc) error

	// Search executes a planned query and returns ordered hits with
	// scores in [0,1] after normalization.
	Search(ctx context.Context, plan models.Plan, topK int) ([]models.SearchHit, models.SearchDiagnostics, error)

	// FindSimilarTemplates is the MoreLikeThis-style query against the
	// signature index.
	FindSimilarTemplates(ctx context.Context, fieldNames []string, sampleText string, topK int) ([]models.TemplateMatch, error)

	// GetEmbeddings loads stored document vectors for a semantic rerank pass.
	GetEmbeddings(ctx context.Context, documentIDs []string) (map[string][]float32, error)
}

// TemplateIndexer is the narrow capability TemplateMatcher depends on.
type TemplateIndexer interface {
	FindSimilarTemplates(ctx context.Context, fieldNames []string, sampleText string, topK int) ([]models.TemplateMatch, error)
	IndexTemplateSignature(ctx context.Context, sig models.SignatureDoc) error
}
