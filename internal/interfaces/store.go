// Package interfaces declares the narrow capability interfaces each
// component depends on, per §9's "polymorphic over capabilities" note:
// small interfaces, not inheritance, so tests can substitute fakes.
package interfaces

import (
	"context"

	"github.com/docuflow/docuflow/internal/models"
)

// Store is the ACID persistence contract for every entity in the data
// model (§4.1). Implemented by internal/storage/sqlite.
type Store interface {
	// CreateDocument rejects duplicate-hash uploads by returning the
	// existing PhysicalFile with a fresh Document row.
	CreateDocument(ctx context.Context, filename string, contentHash string, bytes []byte, storagePath string) (*models.Document, error)

	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// UpdateDocumentStatus performs a state-machine-checked transition;
	// rejects illegal transitions (models.CanTransition).
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error

	SetDocumentTemplate(ctx context.Context, id string, templateID string) error

	// CacheParseResult sets parse-job-id and cached-parse-result atomically.
	CacheParseResult(ctx context.Context, id string, parseJobID string, result *models.ParsedResult) error

	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]models.Template, error)
	CreateTemplate(ctx context.Context, tmpl *models.Template) error
	BumpSignatureVersion(ctx context.Context, templateID string) (int, error)

	// UpsertExtractedFields replaces the field set for a document
	// atomically, preserving Verification history on matching field-name.
	UpsertExtractedFields(ctx context.Context, documentID string, fields []models.ExtractedField) error
	GetExtractedFields(ctx context.Context, documentID string) ([]models.ExtractedField, error)
	GetExtractedField(ctx context.Context, id string) (*models.ExtractedField, error)

	// AppendVerification appends a Verification and updates
	// ExtractedField.verified/verified_value in one transaction.
	AppendVerification(ctx context.Context, fieldID string, action models.VerificationAction, correctedValue *string, notes, reviewerID string) (*models.ExtractedField, error)

	AppendCitation(ctx context.Context, citation *models.Citation) error
	IncrementCitationStats(ctx context.Context, fieldID string) error

	// ListAuditQueue returns fields ordered by (priority ASC, confidence
	// ASC, created-at DESC), optionally filtered.
	ListAuditQueue(ctx context.Context, filter AuditFilter, page, size int) ([]models.FieldWithContext, int, map[models.AuditPriority]int, error)

	GetCanonicalMappings(ctx context.Context) ([]models.CanonicalFieldMapping, error)
	GetCanonicalAliases(ctx context.Context) ([]models.CanonicalAlias, error)
	UpsertCanonicalMapping(ctx context.Context, mapping models.CanonicalFieldMapping) error

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value, description string) error

	Close() error
}

// AuditFilter narrows AuditQueue.List (§6 external interfaces).
type AuditFilter struct {
	Priority   *models.AuditPriority
	TemplateID *string
	DocumentID *string
}
